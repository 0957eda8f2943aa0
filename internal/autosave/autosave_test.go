package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fakeyudi/playground/internal/tabs"
)

type workspace struct{ store *tabs.Store }

func (w workspace) Store() *tabs.Store                 { return w.store }
func (w workspace) MarkSaved(id, content string) error { return w.store.MarkSaved(id, content) }

type recordingSaver struct {
	mu    sync.Mutex
	saves map[string]string
	err   error
}

func (r *recordingSaver) SaveFile(_ context.Context, path, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.saves == nil {
		r.saves = map[string]string{}
	}
	r.saves[path] = content
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func TestTickSkipsSavedTab(t *testing.T) {
	store := tabs.NewStore()
	saver := &recordingSaver{}
	s := New(Options{Saver: saver, Workspace: workspace{store}})
	attempted, err := s.tick(context.Background())
	if err != nil || attempted {
		t.Fatalf("attempted=%v err=%v", attempted, err)
	}
	if saver.count() != 0 {
		t.Error("saved an unchanged tab")
	}
}

func TestTickSavesUnderKeyAndMarksSaved(t *testing.T) {
	store := tabs.NewStore()
	tab := store.CreateTab("a.py", "", true, "src/a.py")
	_ = store.UpdateContent(tab.ID, "x = 1")
	saver := &recordingSaver{}
	var statuses []Status
	s := New(Options{Saver: saver, Workspace: workspace{store}, OnStatus: func(st Status, _ error) {
		statuses = append(statuses, st)
	}, ClearAfter: time.Hour})

	attempted, err := s.tick(context.Background())
	if err != nil || !attempted {
		t.Fatalf("attempted=%v err=%v", attempted, err)
	}
	if saver.saves["src/a.py"] != "x = 1" {
		t.Errorf("saves = %v", saver.saves)
	}
	if got, _ := store.Get(tab.ID); got.Unsaved() {
		t.Error("tab still unsaved")
	}
	if len(statuses) != 2 || statuses[0] != StatusSaving || statuses[1] != StatusSuccess {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestSaveFailureKeepsUnsaved(t *testing.T) {
	store := tabs.NewStore()
	_ = store.UpdateContent(store.ActiveID(), "changed")
	saver := &recordingSaver{err: errors.New("boom")}
	s := New(Options{Saver: saver, Workspace: workspace{store}, ClearAfter: time.Hour})
	if err := s.SaveNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !store.Active().Unsaved() {
		t.Error("failed save cleared unsaved flag")
	}
	if st, err := s.Status(); st != StatusError || err == nil {
		t.Errorf("status = %s, %v", st, err)
	}
}

func TestStatusClearsToIdle(t *testing.T) {
	store := tabs.NewStore()
	done := make(chan struct{})
	s := New(Options{Saver: &recordingSaver{}, Workspace: workspace{store}, ClearAfter: 20 * time.Millisecond,
		OnStatus: func(st Status, _ error) {
			if st == StatusIdle {
				close(done)
			}
		}})
	if err := s.SaveNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("status never cleared")
	}
	if st, _ := s.Status(); st != StatusIdle {
		t.Errorf("status = %s", st)
	}
}

func TestRunSavesOnTimer(t *testing.T) {
	store := tabs.NewStore()
	_ = store.UpdateContent(store.ActiveID(), "print(2)")
	saver := &recordingSaver{}
	s := New(Options{Saver: saver, Workspace: workspace{store}})
	s.SetInterval(MinInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for saver.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if saver.count() != 1 {
		t.Fatalf("expected one timed save, got %d", saver.count())
	}
}

func TestDisabledRunDoesNotSave(t *testing.T) {
	store := tabs.NewStore()
	_ = store.UpdateContent(store.ActiveID(), "print(3)")
	saver := &recordingSaver{}
	s := New(Options{Saver: saver, Workspace: workspace{store}, Interval: MinInterval, Disabled: true})

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)
	if saver.count() != 0 {
		t.Error("saved while disabled")
	}
}

func TestIntervalIsClamped(t *testing.T) {
	s := New(Options{Interval: time.Millisecond})
	if s.Interval() != MinInterval {
		t.Errorf("interval = %s", s.Interval())
	}
	s.SetInterval(10 * time.Second)
	if s.Interval() != 10*time.Second {
		t.Errorf("interval = %s", s.Interval())
	}
}
