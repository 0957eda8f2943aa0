// Package explorer caches the project tree and keeps the per-profile file
// lists: expanded folders, favorites and recently opened files.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/localstore"
)

// MaxRecent is the length of the recent-files ring.
const MaxRecent = 10

const (
	keyExpanded  = "explorer.expanded"
	keyFavorites = "explorer.favorites"
	keyRecent    = "explorer.recent"
)

// Source lists the project tree, normally *api.Client.
type Source interface {
	Structure(ctx context.Context) ([]api.Node, error)
}

// Explorer is safe for concurrent use.
type Explorer struct {
	src Source
	kv  localstore.KV
	log *slog.Logger
	sf  singleflight.Group

	mu     sync.Mutex
	tree   []api.Node
	loaded bool
}

// New returns an explorer. kv may be nil, in which case lists are kept in memory.
func New(src Source, kv localstore.KV, logger *slog.Logger) *Explorer {
	if kv == nil {
		kv = localstore.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Explorer{src: src, kv: kv, log: logger.With("component", "explorer")}
}

// Refresh reloads the tree. Concurrent calls share one request.
func (e *Explorer) Refresh(ctx context.Context) error {
	_, err, shared := e.sf.Do("structure", func() (any, error) {
		nodes, err := e.src.Structure(ctx)
		if err != nil {
			return nil, err
		}
		sortNodes(nodes)
		e.mu.Lock()
		e.tree = nodes
		e.loaded = true
		e.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("refresh tree: %w", err)
	}
	e.log.Debug("tree refreshed", "shared", shared)
	return nil
}

// Tree returns the cached tree, loading it on first use.
func (e *Explorer) Tree(ctx context.Context) ([]api.Node, error) {
	e.mu.Lock()
	loaded := e.loaded
	e.mu.Unlock()
	if !loaded {
		if err := e.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree, nil
}

// Files returns every file path in the tree in display order.
func (e *Explorer) Files(ctx context.Context) ([]string, error) {
	nodes, err := e.Tree(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	var walk func([]api.Node)
	walk = func(ns []api.Node) {
		for _, n := range ns {
			if n.IsFolder() {
				walk(n.Children)
				continue
			}
			out = append(out, n.Path)
		}
	}
	walk(nodes)
	return out, nil
}

// sortNodes puts folders first, then sorts by name, recursively.
func sortNodes(nodes []api.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsFolder() != nodes[j].IsFolder() {
			return nodes[i].IsFolder()
		}
		return nodes[i].Name < nodes[j].Name
	})
	for i := range nodes {
		if len(nodes[i].Children) > 0 {
			sortNodes(nodes[i].Children)
		}
	}
}

func (e *Explorer) list(key string) []string {
	var out []string
	if err := localstore.GetJSON(e.kv, key, &out); err != nil && !errors.Is(err, localstore.ErrNotFound) {
		e.log.Debug("list unreadable", "key", key, "error", err)
	}
	return out
}

func (e *Explorer) update(key string, fn func([]string) []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := fn(e.list(key))
	if err := localstore.SetJSON(e.kv, key, next); err != nil {
		return nil, fmt.Errorf("store %s: %w", key, err)
	}
	return next, nil
}

// Expanded returns the expanded folder paths.
func (e *Explorer) Expanded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list(keyExpanded)
}

// SetExpanded records whether a folder is expanded.
func (e *Explorer) SetExpanded(path string, expanded bool) error {
	_, err := e.update(keyExpanded, func(l []string) []string {
		l = slices.DeleteFunc(l, func(p string) bool { return p == path })
		if expanded {
			l = append(l, path)
		}
		return l
	})
	return err
}

// Favorites returns the favorite file paths.
func (e *Explorer) Favorites() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list(keyFavorites)
}

// ToggleFavorite adds or removes path and reports whether it is now a favorite.
func (e *Explorer) ToggleFavorite(path string) (bool, error) {
	var now bool
	_, err := e.update(keyFavorites, func(l []string) []string {
		if slices.Contains(l, path) {
			return slices.DeleteFunc(l, func(p string) bool { return p == path })
		}
		now = true
		return append(l, path)
	})
	return now, err
}

// Recent returns recently opened files, most recent first.
func (e *Explorer) Recent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list(keyRecent)
}

// RecordRecent moves path to the front of the recent list.
func (e *Explorer) RecordRecent(path string) error {
	_, err := e.update(keyRecent, func(l []string) []string {
		l = slices.DeleteFunc(l, func(p string) bool { return p == path })
		l = append([]string{path}, l...)
		if len(l) > MaxRecent {
			l = l[:MaxRecent]
		}
		return l
	})
	return err
}

// Move replaces old with new in every list, e.g. after a rename.
func (e *Explorer) Move(old, new string) error {
	for _, key := range []string{keyExpanded, keyFavorites, keyRecent} {
		if _, err := e.update(key, func(l []string) []string {
			out := l[:0]
			seen := map[string]bool{}
			for _, p := range l {
				if p == old {
					p = new
				}
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
			return out
		}); err != nil {
			return err
		}
	}
	return nil
}

// Forget drops path from every list, e.g. after it was deleted.
func (e *Explorer) Forget(path string) error {
	for _, key := range []string{keyExpanded, keyFavorites, keyRecent} {
		if _, err := e.update(key, func(l []string) []string {
			return slices.DeleteFunc(l, func(p string) bool { return p == path })
		}); err != nil {
			return err
		}
	}
	return nil
}
