// Package tui provides a Bubble Tea editor for playground tabs.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/languages"
	"github.com/fakeyudi/playground/internal/tabs"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	unsavedDot = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("●")

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// outputHeight is the number of rows given to the run output pane.
const outputHeight = 8

// ── Dependencies ─────────────────

// Workspace is the tab controller the editor drives.
type Workspace interface {
	Store() *tabs.Store
	Select(id string) error
	Add() tabs.Tab
	Close(id string) error
	Duplicate(id string) (tabs.Tab, error)
	LocalEdit(content string) error
}

// Saver persists the active tab.
type Saver interface {
	SaveNow(ctx context.Context) error
}

// Runner executes a tab.
type Runner interface {
	Run(ctx context.Context, tab tabs.Tab, stdin string) (api.ExecuteResult, error)
}

// Files performs file operations on the project, normally
// *lifecycle.Coordinator.
type Files interface {
	Rename(ctx context.Context, id, newName string) (tabs.Tab, error)
	Delete(ctx context.Context, id string) error
	CreateFile(ctx context.Context, filePath, content string, open bool) (tabs.Tab, error)
}

// Options configures the editor model.
type Options struct {
	Workspace Workspace
	Saver     Saver  // optional
	Runner    Runner // optional
	Files     Files  // optional; enables rename, delete and new file
	Title     string
}

// ── Messages ────────────────────

// ContentMsg asks the model to reload the active tab from the store, e.g.
// after a remote edit or a tab switch made outside the UI.
type ContentMsg struct{}

// CollabMsg reports a collaboration connection state change.
type CollabMsg struct{ State string }

// SaveStatusMsg reports an autosave status change.
type SaveStatusMsg struct {
	Status string
	Err    error
}

type saveDoneMsg struct{ err error }

type fileDoneMsg struct {
	note string
	err  error
}

type runDoneMsg struct {
	tab string
	res api.ExecuteResult
	err error
}

// ── Model ────────────────────

// Model is the root Bubble Tea model of the editor.
type Model struct {
	ctx    context.Context
	opts   Options
	editor textarea.Model
	output viewport.Model
	width  int
	height int
	ready  bool

	activeID   string
	collab     string
	saveStatus string
	notice     string
	noticeErr  bool
	running    bool

	prompt       textinput.Model
	promptKind   promptKind
	promptTarget tabs.Tab
}

type promptKind int

const (
	noPrompt promptKind = iota
	renamePrompt
	deletePrompt
	newFilePrompt
)

// New creates an editor model for opts.Workspace.
func New(ctx context.Context, opts Options) Model {
	ta := textarea.New()
	ta.ShowLineNumbers = true
	ta.CharLimit = 0
	ta.MaxHeight = 0
	ta.Prompt = ""
	ta.Focus()
	if opts.Title == "" {
		opts.Title = "playground"
	}
	m := Model{
		ctx:    ctx,
		opts:   opts,
		editor: ta,
		output: viewport.New(80, outputHeight),
		collab: "disconnected",
		prompt: textinput.New(),
	}
	m.load()
	return m
}

// load copies the active tab into the textarea when it differs.
func (m *Model) load() {
	active := m.opts.Workspace.Store().Active()
	m.activeID = active.ID
	if m.editor.Value() != active.Content {
		m.editor.SetValue(active.Content)
	}
}

func (m *Model) note(msg string, isErr bool) {
	m.notice = msg
	m.noticeErr = isErr
}

// Content returns the textarea text.
func (m Model) Content() string { return m.editor.Value() }

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return textarea.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		return m, nil

	case ContentMsg:
		m.load()
		return m, nil

	case CollabMsg:
		m.collab = msg.State
		return m, nil

	case SaveStatusMsg:
		m.saveStatus = msg.Status
		if msg.Err != nil {
			m.note(msg.Err.Error(), true)
		}
		return m, nil

	case saveDoneMsg:
		if msg.err != nil {
			m.note(msg.err.Error(), true)
		} else {
			m.note("saved", false)
		}
		return m, nil

	case fileDoneMsg:
		if msg.err != nil {
			m.note(msg.err.Error(), true)
		} else {
			m.note(msg.note, false)
		}
		m.load()
		return m, nil

	case runDoneMsg:
		m.running = false
		if msg.err != nil {
			m.note(msg.err.Error(), true)
			return m, nil
		}
		m.note(fmt.Sprintf("%s: %s in %ss", msg.tab, msg.res.Status, msg.res.Time), false)
		m.output.SetContent(renderResult(msg.res))
		m.output.GotoTop()
		return m, nil
	}

	var cmd tea.Cmd
	if m.promptKind != noPrompt {
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.promptKind != noPrompt {
		return m.handlePromptKey(msg)
	}
	ws := m.opts.Workspace
	switch msg.String() {
	case "f2", "ctrl+x", "ctrl+o":
		if m.opts.Files == nil {
			return m, nil
		}
		return m, m.ask(msg.String())
	case "ctrl+q", "ctrl+c":
		return m, tea.Quit
	case "ctrl+s":
		return m, m.save()
	case "ctrl+r":
		return m, m.run()
	case "ctrl+n":
		t := ws.Add()
		m.note("opened "+t.Name, false)
		m.load()
		return m, nil
	case "ctrl+w":
		if err := ws.Close(m.activeID); err != nil {
			m.note(err.Error(), true)
		}
		m.load()
		return m, nil
	case "ctrl+d":
		t, err := ws.Duplicate(m.activeID)
		if err != nil {
			m.note(err.Error(), true)
		} else {
			m.note("duplicated as "+t.Name, false)
		}
		m.load()
		return m, nil
	case "alt+right", "alt+left":
		step := 1
		if msg.String() == "alt+left" {
			step = -1
		}
		if err := ws.Select(m.neighbour(step)); err != nil {
			m.note(err.Error(), true)
		}
		m.load()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.output, cmd = m.output.Update(msg)
		return m, cmd
	}

	before := m.editor.Value()
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if after := m.editor.Value(); after != before {
		if err := ws.LocalEdit(after); err != nil {
			m.note(err.Error(), true)
		}
	}
	return m, cmd
}

// ask opens the prompt line for a file operation on the active tab.
func (m *Model) ask(key string) tea.Cmd {
	active := m.opts.Workspace.Store().Active()
	m.promptTarget = active
	m.prompt.Reset()
	m.prompt.Placeholder = ""
	switch key {
	case "f2":
		m.promptKind = renamePrompt
		m.prompt.Prompt = "Rename to: "
		m.prompt.SetValue(active.Name)
	case "ctrl+x":
		m.promptKind = deletePrompt
		m.prompt.Prompt = fmt.Sprintf("Delete %s? (y/N) ", active.Key())
	case "ctrl+o":
		m.promptKind = newFilePrompt
		m.prompt.Prompt = "New file: "
		m.prompt.Placeholder = "src/main.py"
	}
	m.editor.Blur()
	return m.prompt.Focus()
}

func (m *Model) closePrompt() {
	m.promptKind = noPrompt
	m.prompt.Blur()
	m.editor.Focus()
}

func (m Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.closePrompt()
		return m, nil
	case "enter":
		kind, target := m.promptKind, m.promptTarget
		value := strings.TrimSpace(m.prompt.Value())
		m.closePrompt()
		return m, m.fileOp(kind, target, value)
	}
	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// fileOp runs a confirmed prompt against the project in the background.
func (m *Model) fileOp(kind promptKind, target tabs.Tab, value string) tea.Cmd {
	files, ctx := m.opts.Files, m.ctx
	switch kind {
	case renamePrompt:
		if value == "" || value == target.Name {
			return nil
		}
		return func() tea.Msg {
			t, err := files.Rename(ctx, target.ID, value)
			return fileDoneMsg{note: "renamed to " + t.Key(), err: err}
		}
	case deletePrompt:
		if v := strings.ToLower(value); v != "y" && v != "yes" {
			m.note("delete cancelled", false)
			return nil
		}
		return func() tea.Msg {
			err := files.Delete(ctx, target.ID)
			return fileDoneMsg{note: "deleted " + target.Key(), err: err}
		}
	case newFilePrompt:
		if value == "" {
			return nil
		}
		content := ""
		if l, ok := languages.ForFile(value); ok {
			content = l.Template
		}
		return func() tea.Msg {
			t, err := files.CreateFile(ctx, value, content, true)
			return fileDoneMsg{note: "created " + t.Key(), err: err}
		}
	}
	return nil
}

// neighbour returns the id of the tab step positions from the active one,
// wrapping around.
func (m Model) neighbour(step int) string {
	all := m.opts.Workspace.Store().Tabs()
	for i, t := range all {
		if t.ID == m.activeID {
			return all[(i+step+len(all))%len(all)].ID
		}
	}
	return m.activeID
}

func (m Model) save() tea.Cmd {
	if m.opts.Saver == nil {
		return nil
	}
	saver, ctx := m.opts.Saver, m.ctx
	return func() tea.Msg {
		return saveDoneMsg{err: saver.SaveNow(ctx)}
	}
}

func (m *Model) run() tea.Cmd {
	if m.opts.Runner == nil || m.running {
		return nil
	}
	m.running = true
	m.note("running…", false)
	runner, ctx := m.opts.Runner, m.ctx
	tab := m.opts.Workspace.Store().Active()
	return func() tea.Msg {
		res, err := runner.Run(ctx, tab, "")
		return runDoneMsg{tab: tab.Name, res: res, err: err}
	}
}

// ── Layout ───────────────────

func (m *Model) resize() {
	// title(1) + tabRow(1) + output header(1) + output + statusBar(1)
	h := m.height - 4 - outputHeight
	if h < 3 {
		h = 3
	}
	m.editor.SetWidth(m.width)
	m.editor.SetHeight(h)
	m.output.Width = m.width
	m.output.Height = outputHeight
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}
	store := m.opts.Workspace.Store()
	active := store.Active()

	title := titleStyle.Width(m.width).Render("  " + m.opts.Title + "  " + active.Key())

	all := store.Tabs()
	var parts []string
	for i, t := range all {
		label := " " + t.Name + " "
		if t.Unsaved() {
			label = " " + t.Name + " " + unsavedDot + " "
		}
		if t.ID == active.ID {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
		if i < len(all)-1 {
			parts = append(parts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))

	outHeader := sectionHeader.Render("  Output")
	return lipgloss.JoinVertical(lipgloss.Left,
		title, tabRow, m.editor.View(), outHeader, m.output.View(), m.statusBar())
}

func (m Model) statusBar() string {
	if m.promptKind != noPrompt {
		return statusBarStyle.Width(m.width).Render(m.prompt.View())
	}
	left := "  " + m.collab
	if m.saveStatus != "" && m.saveStatus != "idle" {
		left += "  autosave: " + m.saveStatus
	}
	if m.notice != "" {
		if m.noticeErr {
			left += "  " + errStyle.Render(m.notice)
		} else {
			left += "  " + okStyle.Render(m.notice)
		}
	}
	hint := "^s save  ^r run  ^n new  ^w close  ^d dup  alt+←/→ tab  ^q quit"
	if m.opts.Files != nil {
		hint = "^s save  ^r run  ^n new  ^o file  F2 rename  ^x delete  ^w close  ^d dup  alt+←/→  ^q quit"
	}
	pad := m.width - lipgloss.Width(left) - lipgloss.Width(hint) - 2
	if pad < 1 {
		pad = 1
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", pad) + hint)
}

func renderResult(r api.ExecuteResult) string {
	var sb strings.Builder
	if r.CompileOutput != "" {
		sb.WriteString(errStyle.Render(r.CompileOutput) + "\n")
	}
	if r.Stdout != "" {
		sb.WriteString(r.Stdout)
		if !strings.HasSuffix(r.Stdout, "\n") {
			sb.WriteString("\n")
		}
	}
	if r.Stderr != "" {
		sb.WriteString(errStyle.Render(r.Stderr) + "\n")
	}
	if sb.Len() == 0 {
		sb.WriteString(dimStyle.Render("(no output)") + "\n")
	}
	return sb.String()
}

// ── Program wiring ───────────────────

// ProgramEditor forwards controller content pushes into a running program.
// Send is issued from a new goroutine so that callers holding locks never
// block on the program's event loop.
type ProgramEditor struct{ P *tea.Program }

// SetContent implements syncctl.Editor. The model reloads whichever tab is
// active when the message arrives.
func (e ProgramEditor) SetContent(_, _ string) {
	go e.P.Send(ContentMsg{})
}

// NewProgram wraps m in a full-screen program bound to ctx.
func NewProgram(ctx context.Context, m Model) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
}

// Run runs p and treats cancellation through its context as a normal exit.
func Run(p *tea.Program) error {
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
