package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/localstore"
	"github.com/fakeyudi/playground/internal/tabs"
)

type fakeExec struct {
	last api.ExecuteRequest
	err  error
	n    int
}

func (f *fakeExec) Execute(_ context.Context, req api.ExecuteRequest) (api.ExecuteResult, error) {
	f.n++
	f.last = req
	if f.err != nil {
		return api.ExecuteResult{}, f.err
	}
	return api.ExecuteResult{Stdout: "ok\n", Status: "Accepted"}, nil
}

func tab(content string, lang int) tabs.Tab {
	return tabs.Tab{ID: "t", Name: "main.py", Content: content, LanguageID: lang}
}

func TestRunSubmitsLanguageAndStdin(t *testing.T) {
	ex := &fakeExec{}
	r := New(ex, nil, 0, nil)
	res, err := r.Run(context.Background(), tab("print(input())", 71), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "ok\n" || ex.last.LanguageID != 71 || ex.last.Stdin != "hi" {
		t.Errorf("res=%+v req=%+v", res, ex.last)
	}
	if r.RunsToday() != 1 || r.Remaining() != -1 {
		t.Errorf("runs=%d remaining=%d", r.RunsToday(), r.Remaining())
	}
}

func TestRunUnknownLanguageFallsBack(t *testing.T) {
	ex := &fakeExec{}
	r := New(ex, nil, 0, nil)
	if _, err := r.Run(context.Background(), tab("x", 9999), ""); err != nil {
		t.Fatal(err)
	}
	if ex.last.LanguageID != 71 {
		t.Errorf("language = %d", ex.last.LanguageID)
	}
}

func TestEmptySourceRejected(t *testing.T) {
	ex := &fakeExec{}
	r := New(ex, nil, 0, nil)
	if _, err := r.Run(context.Background(), tab("  \n", 71), ""); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("err = %v", err)
	}
	if ex.n != 0 {
		t.Error("empty source submitted")
	}
}

func TestDailyLimit(t *testing.T) {
	ex := &fakeExec{}
	kv := localstore.NewMemory()
	r := New(ex, kv, 2, nil)
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return day }

	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), tab("x", 71), ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := r.Run(context.Background(), tab("x", 71), ""); !errors.Is(err, ErrRunLimit) {
		t.Fatalf("err = %v", err)
	}
	if ex.n != 2 || r.Remaining() != 0 {
		t.Errorf("executions=%d remaining=%d", ex.n, r.Remaining())
	}

	day = day.Add(24 * time.Hour)
	if r.RunsToday() != 0 {
		t.Errorf("counter not reset on a new day: %d", r.RunsToday())
	}
	if _, err := r.Run(context.Background(), tab("x", 71), ""); err != nil {
		t.Fatalf("new day: %v", err)
	}
}

func TestFailedRunNotCounted(t *testing.T) {
	ex := &fakeExec{err: errors.New("sandbox down")}
	r := New(ex, nil, 1, nil)
	if _, err := r.Run(context.Background(), tab("x", 71), ""); err == nil {
		t.Fatal("expected error")
	}
	if r.RunsToday() != 0 {
		t.Errorf("runs = %d", r.RunsToday())
	}
}
