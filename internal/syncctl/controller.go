// Package syncctl keeps the tab store, the editor buffer and the
// collaboration channel consistent with each other.
//
// Every tab operation that can change the active tab goes through the
// Controller so that the single channel subscription always follows the
// active tab's collaboration key. Remote edits are applied last-writer-wins
// at file granularity after three checks: the edit did not originate here,
// it targets the active tab, and it is not older than the last remote edit
// applied to the same file.
package syncctl

import (
	"log/slog"
	"sync"

	"github.com/fakeyudi/playground/internal/collab"
	"github.com/fakeyudi/playground/internal/tabs"
)

// Channel is the part of the collaboration transport the controller drives.
type Channel interface {
	ClientID() string
	SubscribeActive(path string)
	Unsubscribe(path string)
	Publish(path, content string)
}

// Editor is the widget showing the active tab's text. key is the
// collaboration key of the tab the content belongs to, captured when the
// push was decided; it may no longer be active when the call arrives.
type Editor interface {
	SetContent(key, content string)
}

// State is the subscription state of the controller.
type State int

const (
	Idle State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "idle"
}

// Marker records the last remote edit that was applied.
type Marker struct {
	FilePath  string
	Timestamp int64
}

// Stale reports whether msg is not newer than the marker for the same file.
// A marker for a different file never makes an edit stale.
func (m Marker) Stale(msg collab.Message) bool {
	return m.FilePath != "" && m.FilePath == msg.FilePath && msg.Timestamp <= m.Timestamp
}

// Controller coordinates a tab store with a channel and an editor.
type Controller struct {
	store *tabs.Store
	ch    Channel
	log   *slog.Logger

	mu         sync.Mutex
	editor     Editor
	state      State
	subscribed string
	activeID   string
	marker     Marker
	closed     bool
}

// New returns an idle controller. editor may be nil and set later.
func New(store *tabs.Store, ch Channel, editor Editor, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:  store,
		ch:     ch,
		editor: editor,
		log:    logger.With("component", "sync"),
	}
}

// Store returns the underlying tab store for read access.
func (c *Controller) Store() *tabs.Store { return c.store }

// SetEditor replaces the editor and loads the active tab into it.
func (c *Controller) SetEditor(e Editor) {
	c.mu.Lock()
	c.editor = e
	active := c.store.Active()
	c.mu.Unlock()
	if e != nil {
		e.SetContent(active.Key(), active.Content)
	}
}

// Start subscribes to the active tab and loads it into the editor.
func (c *Controller) Start() {
	_ = c.apply(true, nil)
}

// State returns the subscription state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubscribedPath returns the key currently subscribed, or "" when idle.
func (c *Controller) SubscribedPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// Marker returns the last-applied remote edit.
func (c *Controller) Marker() Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.marker
}

// push is an editor update decided under mu and delivered after it is
// released.
type push struct {
	editor  Editor
	key     string
	content string
}

func (p *push) deliver() {
	if p != nil && p.editor != nil {
		p.editor.SetContent(p.key, p.content)
	}
}

// apply runs fn and the subscription reconciliation as one step under mu,
// then pushes the active tab to the editor if it changed (or force is set).
func (c *Controller) apply(force bool, fn func() error) error {
	c.mu.Lock()
	if fn != nil {
		if err := fn(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	p := c.reconcileLocked(force)
	c.mu.Unlock()
	p.deliver()
	return nil
}

// reconcileLocked moves the subscription to the active tab's key.
func (c *Controller) reconcileLocked(force bool) *push {
	if c.closed {
		return nil
	}
	active := c.store.Active()
	key := active.Key()
	if c.state != Subscribed || c.subscribed != key {
		if c.state == Subscribed && c.subscribed != "" {
			c.ch.Unsubscribe(c.subscribed)
		}
		c.ch.SubscribeActive(key)
		c.subscribed = key
		c.state = Subscribed
		c.log.Debug("subscription moved", "path", key)
	}
	changed := force || active.ID != c.activeID
	c.activeID = active.ID
	if !changed {
		return nil
	}
	return &push{editor: c.editor, key: key, content: active.Content}
}

// LocalEdit records an edit of the active tab and schedules its publish.
func (c *Controller) LocalEdit(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	active := c.store.Active()
	if err := c.store.UpdateContent(active.ID, content); err != nil {
		return err
	}
	c.ch.Publish(active.Key(), content)
	return nil
}

// HandleRemote applies an inbound edit if it passes the self-echo,
// active-file and staleness checks. It reports whether the edit was applied.
func (c *Controller) HandleRemote(msg collab.Message) bool {
	if msg.Type != collab.TypeEdit {
		return false
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if msg.ClientID == c.ch.ClientID() {
		c.mu.Unlock()
		return false
	}
	active := c.store.Active()
	if active.Key() != msg.FilePath {
		c.mu.Unlock()
		c.log.Debug("remote edit for inactive file ignored", "path", msg.FilePath)
		return false
	}
	if c.marker.Stale(msg) {
		c.mu.Unlock()
		c.log.Debug("stale remote edit ignored", "path", msg.FilePath,
			"timestamp", msg.Timestamp, "last_applied", c.marker.Timestamp)
		return false
	}
	if err := c.store.UpdateContent(active.ID, msg.Content); err != nil {
		c.mu.Unlock()
		return false
	}
	c.marker = Marker{FilePath: msg.FilePath, Timestamp: msg.Timestamp}
	p := &push{editor: c.editor, key: msg.FilePath, content: msg.Content}
	c.mu.Unlock()

	p.deliver()
	return true
}

// Select makes id the active tab.
func (c *Controller) Select(id string) error {
	return c.apply(false, func() error { return c.store.SelectTab(id) })
}

// Add opens a new blank tab.
func (c *Controller) Add() tabs.Tab {
	var t tabs.Tab
	_ = c.apply(false, func() error {
		t = c.store.AddTab()
		return nil
	})
	return t
}

// Create opens a tab with the given content.
func (c *Controller) Create(name, content string, isCustomName bool, filePath string) tabs.Tab {
	var t tabs.Tab
	_ = c.apply(false, func() error {
		t = c.store.CreateTab(name, content, isCustomName, filePath)
		return nil
	})
	return t
}

// Rename updates a tab's name and, when newPath is non-empty, its path.
func (c *Controller) Rename(id, newName, newPath string) error {
	return c.apply(false, func() error { return c.store.RenameTab(id, newName, newPath) })
}

// Duplicate copies a tab into a new scratch tab.
func (c *Controller) Duplicate(id string) (tabs.Tab, error) {
	var t tabs.Tab
	err := c.apply(false, func() (err error) {
		t, err = c.store.DuplicateTab(id)
		return err
	})
	return t, err
}

// Close closes a tab. The last tab cannot be closed.
func (c *Controller) Close(id string) error {
	return c.apply(false, func() error { return c.store.CloseTab(id) })
}

// CloseOthers keeps only id.
func (c *Controller) CloseOthers(id string) error {
	return c.apply(false, func() error { return c.store.CloseOthers(id) })
}

// CloseAll resets to a single default tab.
func (c *Controller) CloseAll() {
	_ = c.apply(false, func() error {
		c.store.CloseAll()
		return nil
	})
}

// Delete drops a tab whose file was deleted.
func (c *Controller) Delete(id string) error {
	return c.apply(false, func() error { return c.store.DeleteTab(id) })
}

// ChangeLanguage switches a tab's language, which may rename it.
func (c *Controller) ChangeLanguage(id string, languageID int) error {
	return c.apply(false, func() error { return c.store.ChangeLanguage(id, languageID) })
}

// MarkSaved records content as persisted for a tab.
func (c *Controller) MarkSaved(id, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.MarkSaved(id, content)
}

// Shutdown leaves the Subscribed state. Further calls are ignored.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.state == Subscribed && c.subscribed != "" {
		c.ch.Unsubscribe(c.subscribed)
	}
	c.state = Idle
	c.subscribed = ""
}
