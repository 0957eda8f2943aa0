// Package lifecycle coordinates file operations that touch both the remote
// project filesystem and the local tabs. Each operation either completes on
// both sides or leaves local state untouched.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/fakeyudi/playground/internal/languages"
	"github.com/fakeyudi/playground/internal/tabs"
)

// ErrCancelled is returned when the user declines a confirmation.
var ErrCancelled = errors.New("cancelled")

// ValidationError rejects input before any network call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Workspace is the tab-side of the coordinator, normally *syncctl.Controller.
type Workspace interface {
	Store() *tabs.Store
	Select(id string) error
	Create(name, content string, isCustomName bool, filePath string) tabs.Tab
	Rename(id, newName, newPath string) error
	Delete(id string) error
}

// Files is the remote filesystem, normally *api.Client.
type Files interface {
	ReadFile(ctx context.Context, path string) (string, error)
	RenameFile(ctx context.Context, oldPath, newName string) (string, error)
	DeleteFile(ctx context.Context, path string) error
	CreateFile(ctx context.Context, path, content string) error
	CreateFolder(ctx context.Context, path string) error
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) { return f(ctx, prompt) }

// Notifier tells other clients the project structure changed.
type Notifier interface {
	NotifyStructureChanged()
}

// TreeRefresher reloads the explorer tree.
type TreeRefresher interface {
	Refresh(ctx context.Context) error
}

// RecentRecorder remembers opened files.
type RecentRecorder interface {
	RecordRecent(path string) error
}

// Options wires a Coordinator. Only Workspace and Files are required.
type Options struct {
	Workspace Workspace
	Files     Files
	Confirm   Confirmer
	Notify    Notifier
	Tree      TreeRefresher
	Recent    RecentRecorder
	Logger    *slog.Logger
}

// Coordinator performs rename, delete, create and open.
type Coordinator struct {
	opts Options
	log  *slog.Logger
}

// New returns a coordinator. A nil Confirm approves every prompt.
func New(opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{opts: opts, log: log.With("component", "lifecycle")}
}

// ValidateFileName checks that name is a bare file name with an allowed extension.
func ValidateFileName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return &ValidationError{Field: "file name", Value: name, Reason: "must not be empty"}
	case strings.ContainsAny(name, `/\`):
		return &ValidationError{Field: "file name", Value: name, Reason: "must not contain a path separator"}
	case !languages.AllowedExtension(name):
		return &ValidationError{Field: "file name", Value: name, Reason: "unsupported file extension"}
	}
	return nil
}

func validatePath(field, p string) error {
	clean := strings.Trim(strings.TrimSpace(p), "/")
	if clean == "" {
		return &ValidationError{Field: field, Value: p, Reason: "must not be empty"}
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." || part == "." {
			return &ValidationError{Field: field, Value: p, Reason: "must not contain relative segments"}
		}
	}
	return nil
}

func (c *Coordinator) tab(id string) (tabs.Tab, error) {
	t, ok := c.opts.Workspace.Store().Get(id)
	if !ok {
		return tabs.Tab{}, fmt.Errorf("tab %s: %w", id, tabs.ErrTabNotFound)
	}
	return t, nil
}

func (c *Coordinator) structureChanged(ctx context.Context) {
	if c.opts.Notify != nil {
		c.opts.Notify.NotifyStructureChanged()
	}
	if c.opts.Tree != nil {
		if err := c.opts.Tree.Refresh(ctx); err != nil {
			c.log.Warn("tree refresh failed", "error", err)
		}
	}
}

// Rename gives a tab a new file name. Scratch tabs are renamed locally; other
// tabs are renamed on the server first and take the server-assigned path.
func (c *Coordinator) Rename(ctx context.Context, id, newName string) (tabs.Tab, error) {
	newName = strings.TrimSpace(newName)
	if err := ValidateFileName(newName); err != nil {
		return tabs.Tab{}, err
	}
	t, err := c.tab(id)
	if err != nil {
		return tabs.Tab{}, err
	}
	if t.Scratch() {
		if err := c.opts.Workspace.Rename(id, newName, ""); err != nil {
			return tabs.Tab{}, err
		}
		return c.tab(id)
	}

	newPath, err := c.opts.Files.RenameFile(ctx, t.Path, newName)
	if err != nil {
		return tabs.Tab{}, err
	}
	if newPath == "" {
		newPath = path.Join(path.Dir(t.Path), newName)
	}
	if err := c.opts.Workspace.Rename(id, newName, newPath); err != nil {
		return tabs.Tab{}, err
	}
	c.log.Info("file renamed", "from", t.Path, "to", newPath)
	c.structureChanged(ctx)
	return c.tab(id)
}

// Delete removes a tab's file after confirmation. Scratch tabs only lose
// the tab.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	t, err := c.tab(id)
	if err != nil {
		return err
	}
	if c.opts.Confirm != nil {
		ok, err := c.opts.Confirm.Confirm(ctx, fmt.Sprintf("Delete %s? This cannot be undone.", t.Key()))
		if err != nil {
			return fmt.Errorf("confirm delete: %w", err)
		}
		if !ok {
			return ErrCancelled
		}
	}
	if !t.Scratch() {
		if err := c.opts.Files.DeleteFile(ctx, t.Path); err != nil {
			return err
		}
	}
	if err := c.opts.Workspace.Delete(id); err != nil {
		return err
	}
	if !t.Scratch() {
		c.log.Info("file deleted", "path", t.Path)
		c.structureChanged(ctx)
	}
	return nil
}

// CreateFile creates filePath remotely and, when open is set, opens it in a
// new tab. The returned tab is the zero Tab when open is false.
func (c *Coordinator) CreateFile(ctx context.Context, filePath, content string, open bool) (tabs.Tab, error) {
	if err := validatePath("path", filePath); err != nil {
		return tabs.Tab{}, err
	}
	filePath = strings.Trim(strings.TrimSpace(filePath), "/")
	name := path.Base(filePath)
	if err := ValidateFileName(name); err != nil {
		return tabs.Tab{}, err
	}
	if err := c.opts.Files.CreateFile(ctx, filePath, content); err != nil {
		return tabs.Tab{}, err
	}
	c.log.Info("file created", "path", filePath)
	c.structureChanged(ctx)
	if !open {
		return tabs.Tab{}, nil
	}
	t := c.opts.Workspace.Create(name, content, true, filePath)
	c.recordRecent(filePath)
	return t, nil
}

// CreateFolder creates a folder remotely.
func (c *Coordinator) CreateFolder(ctx context.Context, folder string) error {
	if err := validatePath("folder", folder); err != nil {
		return err
	}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if err := c.opts.Files.CreateFolder(ctx, folder); err != nil {
		return err
	}
	c.log.Info("folder created", "path", folder)
	c.structureChanged(ctx)
	return nil
}

// Open selects the tab for filePath, loading it from the server if no tab
// holds it yet.
func (c *Coordinator) Open(ctx context.Context, filePath string) (tabs.Tab, error) {
	if err := validatePath("path", filePath); err != nil {
		return tabs.Tab{}, err
	}
	filePath = strings.Trim(strings.TrimSpace(filePath), "/")
	if t, ok := c.opts.Workspace.Store().FindByKey(filePath); ok && !t.Scratch() {
		if err := c.opts.Workspace.Select(t.ID); err != nil {
			return tabs.Tab{}, err
		}
		c.recordRecent(filePath)
		return t, nil
	}
	content, err := c.opts.Files.ReadFile(ctx, filePath)
	if err != nil {
		return tabs.Tab{}, err
	}
	t := c.opts.Workspace.Create(path.Base(filePath), content, true, filePath)
	c.recordRecent(filePath)
	return t, nil
}

func (c *Coordinator) recordRecent(p string) {
	if c.opts.Recent == nil {
		return
	}
	if err := c.opts.Recent.RecordRecent(p); err != nil {
		c.log.Debug("recent files not updated", "error", err)
	}
}
