// Package autosave periodically persists the active tab when it has unsaved
// changes.
package autosave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fakeyudi/playground/internal/tabs"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultClearAfter = 2 * time.Second
	MinInterval       = time.Second
)

// Status is the save indicator shown to the user.
type Status int

const (
	StatusIdle Status = iota
	StatusSaving
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSaving:
		return "saving"
	case StatusSuccess:
		return "saved"
	case StatusError:
		return "save failed"
	default:
		return "idle"
	}
}

// Saver persists a file, normally *api.Client.
type Saver interface {
	SaveFile(ctx context.Context, path, content string) error
}

// Workspace exposes the tabs to save, normally *syncctl.Controller.
type Workspace interface {
	Store() *tabs.Store
	MarkSaved(id, content string) error
}

// Options configures a Scheduler.
type Options struct {
	Saver      Saver
	Workspace  Workspace
	Interval   time.Duration
	Disabled   bool
	ClearAfter time.Duration
	// OnStatus is called on every status change, from the saving goroutine.
	OnStatus func(Status, error)
	Logger   *slog.Logger
}

// Scheduler runs the autosave timer and the manual save.
type Scheduler struct {
	saver      Saver
	ws         Workspace
	clearAfter time.Duration
	onStatus   func(Status, error)
	log        *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	enabled  bool
	status   Status
	lastErr  error
	gen      uint64
	clear    *time.Timer
	wake     chan struct{}
}

// New returns a scheduler; call Run to start the timer.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Interval < MinInterval {
		opts.Interval = MinInterval
	}
	if opts.ClearAfter <= 0 {
		opts.ClearAfter = DefaultClearAfter
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		saver:      opts.Saver,
		ws:         opts.Workspace,
		clearAfter: opts.ClearAfter,
		onStatus:   opts.OnStatus,
		log:        log.With("component", "autosave"),
		interval:   opts.Interval,
		enabled:    !opts.Disabled,
		wake:       make(chan struct{}, 1),
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()
	defer s.stopClear()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			ticker.Reset(s.Interval())
		case <-ticker.C:
			if !s.Enabled() {
				continue
			}
			if _, err := s.tick(ctx); err != nil {
				s.log.Warn("autosave failed", "error", err)
			}
		}
	}
}

// Interval returns the autosave period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the period; it takes effect immediately.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d < MinInterval {
		d = MinInterval
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Enabled reports whether timed saves run.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled turns timed saves on or off. SaveNow is unaffected.
func (s *Scheduler) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
}

// Status returns the current indicator and the last save error.
func (s *Scheduler) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

// tick saves the active tab if it has unsaved changes. It reports whether a
// save was attempted.
func (s *Scheduler) tick(ctx context.Context) (bool, error) {
	t := s.ws.Store().Active()
	if !t.Unsaved() {
		return false, nil
	}
	return true, s.save(ctx, t)
}

// SaveNow saves the active tab regardless of its unsaved state.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	return s.save(ctx, s.ws.Store().Active())
}

func (s *Scheduler) save(ctx context.Context, t tabs.Tab) error {
	s.setStatus(StatusSaving, nil)
	key := t.Key()
	if err := s.saver.SaveFile(ctx, key, t.Content); err != nil {
		err = fmt.Errorf("save %s: %w", key, err)
		s.setStatus(StatusError, err)
		return err
	}
	if err := s.ws.MarkSaved(t.ID, t.Content); err != nil {
		// The tab was closed while saving; the file itself was written.
		s.log.Debug("saved tab no longer open", "path", key)
	}
	s.log.Debug("saved", "path", key, "bytes", len(t.Content))
	s.setStatus(StatusSuccess, nil)
	return nil
}

func (s *Scheduler) setStatus(st Status, err error) {
	s.mu.Lock()
	s.status = st
	s.lastErr = err
	s.gen++
	gen := s.gen
	if s.clear != nil {
		s.clear.Stop()
		s.clear = nil
	}
	if st == StatusSuccess || st == StatusError {
		s.clear = time.AfterFunc(s.clearAfter, func() { s.clearStatus(gen) })
	}
	cb := s.onStatus
	s.mu.Unlock()
	if cb != nil {
		cb(st, err)
	}
}

func (s *Scheduler) clearStatus(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.status = StatusIdle
	s.lastErr = nil
	s.clear = nil
	cb := s.onStatus
	s.mu.Unlock()
	if cb != nil {
		cb(StatusIdle, nil)
	}
}

func (s *Scheduler) stopClear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clear != nil {
		s.clear.Stop()
		s.clear = nil
	}
}
