package tabs

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fakeyudi/playground/internal/languages"
)

var (
	// ErrTabNotFound is returned when an operation names an unknown tab id.
	ErrTabNotFound = errors.New("tab not found")
	// ErrLastTab is returned by CloseTab when only one tab remains.
	ErrLastTab = errors.New("cannot close the last tab")
)

// Store is the authoritative set of open tabs. There is always at least one
// tab and exactly one of them is active. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	tabs     []*Tab
	active   string
	language int // the global language selector
	newID    func() string
}

// NewStore returns a store holding a single default tab.
func NewStore() *Store {
	s := &Store{
		language: languages.DefaultID,
		newID:    uuid.NewString,
	}
	t := s.defaultTabLocked()
	s.tabs = []*Tab{t}
	s.active = t.ID
	return s
}

// defaultTabLocked builds a fresh tab for the current language.
func (s *Store) defaultTabLocked() *Tab {
	lang, ok := languages.ByID(s.language)
	if !ok {
		lang = languages.Default()
	}
	return &Tab{
		ID:         s.newID(),
		Name:       languages.MainFile(lang),
		Content:    lang.Template,
		LanguageID: lang.ID,
		saved:      lang.Template,
	}
}

// Tabs returns a snapshot of all tabs in display order.
func (s *Store) Tabs() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tab, len(s.tabs))
	for i, t := range s.tabs {
		out[i] = *t
	}
	return out
}

// Len returns the number of open tabs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tabs)
}

// Active returns the active tab.
func (s *Store) Active() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.findLocked(s.active)
	return *t
}

// ActiveID returns the id of the active tab.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Get returns the tab with the given id.
func (s *Store) Get(id string) (Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.findLocked(id)
	if t == nil {
		return Tab{}, false
	}
	return *t, true
}

// FindByKey returns the first tab whose collaboration key equals key.
func (s *Store) FindByKey(key string) (Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tabs {
		if t.Key() == key {
			return *t, true
		}
	}
	return Tab{}, false
}

// AddTab opens a new blank tab for the current language and selects it.
func (s *Store) AddTab() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.defaultTabLocked()
	t.Name = s.uniqueNameLocked(t.Name)
	s.tabs = append(s.tabs, t)
	s.active = t.ID
	return *t
}

// CreateTab opens a tab with explicit content and selects it. path may be
// empty for scratch tabs. Newly created tabs start out saved.
func (s *Store) CreateTab(name, content string, isCustomName bool, filePath string) Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	langID := s.language
	if l, ok := languages.ForFile(name); ok {
		langID = l.ID
	}
	t := &Tab{
		ID:           s.newID(),
		Name:         name,
		Path:         filePath,
		Content:      content,
		LanguageID:   langID,
		IsCustomName: isCustomName,
		saved:        content,
	}
	s.tabs = append(s.tabs, t)
	s.active = t.ID
	return *t
}

// SelectTab makes id the active tab.
func (s *Store) SelectTab(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, t := s.findLocked(id); t == nil {
		return fmt.Errorf("select %s: %w", id, ErrTabNotFound)
	}
	s.active = id
	return nil
}

// UpdateContent replaces the in-memory text of a tab.
func (s *Store) UpdateContent(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("update %s: %w", id, ErrTabNotFound)
	}
	t.Content = content
	return nil
}

// MarkSaved records content as the last value persisted for the tab. The tab
// stays unsaved if it was edited after content was captured.
func (s *Store) MarkSaved(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("mark saved %s: %w", id, ErrTabNotFound)
	}
	t.saved = content
	return nil
}

// RenameTab updates display metadata only. newPath replaces the path when
// non-empty. Renaming marks the name as custom.
func (s *Store) RenameTab(id, newName, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("rename %s: %w", id, ErrTabNotFound)
	}
	t.Name = newName
	if newPath != "" {
		t.Path = newPath
	}
	t.IsCustomName = true
	if l, ok := languages.ForFile(newName); ok {
		t.LanguageID = l.ID
	}
	return nil
}

// ChangeLanguage sets the tab's language and moves the global selector.
// Tabs without a custom name are renamed to the language's main file.
func (s *Store) ChangeLanguage(id string, languageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lang, ok := languages.ByID(languageID)
	if !ok {
		return fmt.Errorf("unknown language %d", languageID)
	}
	_, t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("change language %s: %w", id, ErrTabNotFound)
	}
	s.language = lang.ID
	t.LanguageID = lang.ID
	if !t.IsCustomName {
		t.Name = languages.MainFile(lang)
	}
	return nil
}

// Language returns the global language selection.
func (s *Store) Language() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// DuplicateTab copies a tab into a new scratch tab placed right after it,
// named "<name> Copy" or "<name> Copy N", and selects the copy.
func (s *Store) DuplicateTab(id string) (Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, src := s.findLocked(id)
	if src == nil {
		return Tab{}, fmt.Errorf("duplicate %s: %w", id, ErrTabNotFound)
	}
	name := src.Name + " Copy"
	for n := 2; s.nameTakenLocked(name); n++ {
		name = fmt.Sprintf("%s Copy %d", src.Name, n)
	}
	dup := &Tab{
		ID:           s.newID(),
		Name:         name,
		Content:      src.Content,
		LanguageID:   src.LanguageID,
		IsCustomName: true,
		saved:        src.Content,
	}
	s.tabs = append(s.tabs[:i+1], append([]*Tab{dup}, s.tabs[i+1:]...)...)
	s.active = dup.ID
	return *dup, nil
}

// CloseTab removes a tab. It refuses to close the last remaining tab.
func (s *Store) CloseTab(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("close %s: %w", id, ErrTabNotFound)
	}
	if len(s.tabs) < 2 {
		return ErrLastTab
	}
	s.removeAtLocked(i)
	return nil
}

// DeleteTab removes a tab whose file was deleted. Deleting the last tab
// replaces it with a fresh default tab.
func (s *Store) DeleteTab(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("delete %s: %w", id, ErrTabNotFound)
	}
	if len(s.tabs) == 1 {
		s.resetLocked()
		return nil
	}
	s.removeAtLocked(i)
	return nil
}

// CloseOthers keeps only the given tab and selects it.
func (s *Store) CloseOthers(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.findLocked(id)
	if t == nil {
		return fmt.Errorf("close others %s: %w", id, ErrTabNotFound)
	}
	s.tabs = []*Tab{t}
	s.active = t.ID
	return nil
}

// CloseAll collapses the store to a single fresh default tab.
func (s *Store) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	t := s.defaultTabLocked()
	s.tabs = []*Tab{t}
	s.active = t.ID
}

// removeAtLocked drops tabs[i]; if it was active, the preceding tab (or the
// first one) becomes active. Callers guarantee len(s.tabs) >= 2.
func (s *Store) removeAtLocked(i int) {
	wasActive := s.tabs[i].ID == s.active
	s.tabs = append(s.tabs[:i], s.tabs[i+1:]...)
	if !wasActive {
		return
	}
	next := i - 1
	if next < 0 {
		next = 0
	}
	s.active = s.tabs[next].ID
}

func (s *Store) findLocked(id string) (int, *Tab) {
	for i, t := range s.tabs {
		if t.ID == id {
			return i, t
		}
	}
	return -1, nil
}

func (s *Store) nameTakenLocked(name string) bool {
	for _, t := range s.tabs {
		if t.Name == name {
			return true
		}
	}
	return false
}

// uniqueNameLocked returns name, or "base-N.ext" for the first free N >= 2.
func (s *Store) uniqueNameLocked(name string) string {
	if !s.nameTakenLocked(name) {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !s.nameTakenLocked(candidate) {
			return candidate
		}
	}
}
