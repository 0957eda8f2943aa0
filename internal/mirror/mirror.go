// Package mirror lets a local directory stand in for the editor widget.
//
// The active tab is written to <dir>/<key>. Writes to files in the directory
// made by any other program become local edits of the matching tab, and remote
// edits applied by the controller are written back. Files the mirror wrote
// itself are recognised by content and not re-published.
package mirror

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/playground/internal/tabs"
)

// DefaultIgnore matches editor swap and backup files.
var DefaultIgnore = []string{".*", "*~", "*.swp", "*.swx", "4913"}

// Workspace is the part of the sync controller the mirror drives.
type Workspace interface {
	Store() *tabs.Store
	Select(id string) error
	Create(name, content string, isCustomName bool, filePath string) tabs.Tab
	LocalEdit(content string) error
}

// Mirror binds a directory to a workspace.
type Mirror struct {
	dir     string
	ws      Workspace
	ignore  []string
	log     *slog.Logger
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	written   map[string]string // key -> content last written or read by the mirror
	switching string            // key being activated from a file change
}

// New watches dir recursively, creating it if needed. ignore defaults to
// DefaultIgnore when nil.
func New(dir string, ws Workspace, ignore []string, logger *slog.Logger) (*Mirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ignore == nil {
		ignore = DefaultIgnore
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	m := &Mirror{
		dir:     abs,
		ws:      ws,
		ignore:  ignore,
		log:     logger.With("component", "mirror", "dir", abs),
		watcher: w,
		written: map[string]string{},
	}
	if err := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != abs && m.ignored(p) {
				return filepath.SkipDir
			}
			return w.Add(p)
		}
		return nil
	}); err != nil {
		w.Close()
		return nil, err
	}
	return m, nil
}

// Dir returns the mirrored directory.
func (m *Mirror) Dir() string { return m.dir }

// SetContent writes content to the file for key. It implements
// syncctl.Editor.
func (m *Mirror) SetContent(key, content string) {
	m.mu.Lock()
	skip := key == m.switching
	m.mu.Unlock()
	if skip {
		return
	}
	if err := m.write(key, content); err != nil {
		m.log.Warn("mirror write failed", "path", key, "error", err)
	}
}

func (m *Mirror) write(key, content string) error {
	p, ok := m.fileFor(key)
	if !ok {
		return errors.New("key escapes the mirror directory")
	}
	m.mu.Lock()
	m.written[key] = content
	m.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// Replace via rename so watchers never observe a truncated file.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".mirror-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (m *Mirror) fileFor(key string) (string, bool) {
	p := filepath.Join(m.dir, filepath.FromSlash(key))
	rel, err := filepath.Rel(m.dir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return p, true
}

// Run forwards file changes until ctx is cancelled, then closes the watcher.
func (m *Mirror) Run(ctx context.Context) error {
	defer m.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if m.ignored(event.Name) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Has(fsnotify.Create) {
					_ = m.watcher.Add(event.Name)
				}
				continue
			}
			m.changed(event.Name)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Debug("watch error", "error", err)
		}
	}
}

// changed turns an external write of file p into a local edit.
func (m *Mirror) changed(p string) {
	rel, err := filepath.Rel(m.dir, p)
	if err != nil {
		return
	}
	key := filepath.ToSlash(rel)
	data, err := os.ReadFile(p)
	if err != nil {
		return
	}
	content := string(data)

	m.mu.Lock()
	own, seen := m.written[key]
	m.mu.Unlock()
	if seen && own == content {
		return
	}

	m.mu.Lock()
	m.written[key] = content
	m.switching = key
	m.mu.Unlock()
	err = m.activate(key, content)
	m.mu.Lock()
	m.switching = ""
	m.mu.Unlock()
	if err != nil {
		m.log.Warn("select failed", "path", key, "error", err)
		return
	}
	if err := m.ws.LocalEdit(content); err != nil {
		m.log.Warn("local edit failed", "path", key, "error", err)
		return
	}
	m.log.Debug("local edit", "path", key, "bytes", len(content))
}

// activate makes key the active tab, opening it when no tab has that key.
func (m *Mirror) activate(key, content string) error {
	store := m.ws.Store()
	if store.Active().Key() == key {
		return nil
	}
	if t, ok := store.FindByKey(key); ok {
		return m.ws.Select(t.ID)
	}
	m.ws.Create(filepath.Base(key), content, true, key)
	return nil
}

// ignored reports whether any element of p below the mirror directory, or
// the whole relative path, matches an ignore pattern.
func (m *Mirror) ignored(p string) bool {
	rel, err := filepath.Rel(m.dir, p)
	if err != nil {
		rel = p
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range m.ignore {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		for _, part := range strings.Split(rel, "/") {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}
