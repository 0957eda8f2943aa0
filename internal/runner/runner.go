// Package runner submits the active tab to the execution service and
// enforces the daily run limit.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/languages"
	"github.com/fakeyudi/playground/internal/localstore"
	"github.com/fakeyudi/playground/internal/tabs"
)

var (
	// ErrRunLimit is returned once the daily run limit is reached.
	ErrRunLimit = errors.New("daily run limit reached")
	// ErrEmptySource is returned for a tab with no code.
	ErrEmptySource = errors.New("nothing to run")
)

// Executor is the execution service, normally *api.Client.
type Executor interface {
	Execute(ctx context.Context, req api.ExecuteRequest) (api.ExecuteResult, error)
}

type counter struct {
	Date string `json:"date"`
	Runs int    `json:"runs"`
}

const counterKey = "runs.daily"

// Runner is safe for concurrent use.
type Runner struct {
	exec Executor
	kv   localstore.KV
	now  func() time.Time
	log  *slog.Logger

	mu    sync.Mutex
	limit int
}

// New returns a runner. limit <= 0 means unlimited. kv may be nil.
func New(exec Executor, kv localstore.KV, limit int, logger *slog.Logger) *Runner {
	if kv == nil {
		kv = localstore.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{exec: exec, kv: kv, now: time.Now, limit: limit, log: logger.With("component", "runner")}
}

// SetLimit changes the daily limit.
func (r *Runner) SetLimit(n int) {
	r.mu.Lock()
	r.limit = n
	r.mu.Unlock()
}

func (r *Runner) today() string { return r.now().Format(time.DateOnly) }

func (r *Runner) loadLocked() counter {
	var c counter
	if err := localstore.GetJSON(r.kv, counterKey, &c); err != nil || c.Date != r.today() {
		return counter{Date: r.today()}
	}
	return c
}

// RunsToday returns the number of runs recorded for the current date.
func (r *Runner) RunsToday() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked().Runs
}

// Remaining returns the runs left today, or -1 when unlimited.
func (r *Runner) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit <= 0 {
		return -1
	}
	return max(0, r.limit-r.loadLocked().Runs)
}

// Run executes tab with stdin. A run counts once the service accepted it.
func (r *Runner) Run(ctx context.Context, tab tabs.Tab, stdin string) (api.ExecuteResult, error) {
	if strings.TrimSpace(tab.Content) == "" {
		return api.ExecuteResult{}, ErrEmptySource
	}
	langID := tab.LanguageID
	if _, ok := languages.ByID(langID); !ok {
		langID = languages.DefaultID
	}

	r.mu.Lock()
	c := r.loadLocked()
	if r.limit > 0 && c.Runs >= r.limit {
		r.mu.Unlock()
		return api.ExecuteResult{}, fmt.Errorf("%w (%d per day)", ErrRunLimit, r.limit)
	}
	r.mu.Unlock()

	start := r.now()
	res, err := r.exec.Execute(ctx, api.ExecuteRequest{LanguageID: langID, SourceCode: tab.Content, Stdin: stdin})
	if err != nil {
		return api.ExecuteResult{}, err
	}

	r.mu.Lock()
	c = r.loadLocked()
	c.Runs++
	if err := localstore.SetJSON(r.kv, counterKey, c); err != nil {
		r.log.Warn("run counter not stored", "error", err)
	}
	r.mu.Unlock()

	r.log.Info("executed", "file", tab.Key(), "language", langID, "status", res.Status,
		"elapsed", r.now().Sub(start))
	return res, nil
}
