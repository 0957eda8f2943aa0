package explorer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/localstore"
)

type slowSource struct {
	calls atomic.Int32
	nodes []api.Node
}

func (s *slowSource) Structure(context.Context) ([]api.Node, error) {
	s.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	out := make([]api.Node, len(s.nodes))
	copy(out, s.nodes)
	return out, nil
}

func TestConcurrentRefreshSharesRequest(t *testing.T) {
	src := &slowSource{nodes: []api.Node{{Name: "a.py", Path: "a.py", Type: "file"}}}
	e := New(src, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Refresh(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n > 2 {
		t.Errorf("structure fetched %d times", n)
	}
}

func TestTreeSortsFoldersFirst(t *testing.T) {
	src := &slowSource{nodes: []api.Node{
		{Name: "z.py", Path: "z.py", Type: "file"},
		{Name: "lib", Path: "lib", Type: "folder", Children: []api.Node{
			{Name: "b.go", Path: "lib/b.go", Type: "file"},
			{Name: "a.go", Path: "lib/a.go", Type: "file"},
		}},
		{Name: "a.py", Path: "a.py", Type: "file"},
	}}
	e := New(src, nil, nil)
	files, err := e.Files(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"lib/a.go", "lib/b.go", "a.py", "z.py"}
	if !slices.Equal(files, want) {
		t.Errorf("files = %v, want %v", files, want)
	}
	if _, err := e.Tree(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("tree not cached: %d fetches", src.calls.Load())
	}
}

func TestRecentRing(t *testing.T) {
	e := New(&slowSource{}, localstore.NewMemory(), nil)
	for i := 0; i < 12; i++ {
		if err := e.RecordRecent(fmt.Sprintf("f%d.py", i)); err != nil {
			t.Fatal(err)
		}
	}
	_ = e.RecordRecent("f5.py")
	got := e.Recent()
	if len(got) != MaxRecent {
		t.Fatalf("len = %d", len(got))
	}
	if got[0] != "f5.py" || got[1] != "f11.py" {
		t.Errorf("order = %v", got)
	}
	if slices.Contains(got, "f0.py") || slices.Contains(got, "f1.py") {
		t.Errorf("oldest entries kept: %v", got)
	}
}

// Feature: playground, Property 4: the recent list is bounded, deduplicated and starts with the latest path
func TestRecentProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := New(&slowSource{}, localstore.NewMemory(), nil)
		paths := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}), 1, 40).Draw(t, "paths")
		for _, p := range paths {
			_ = e.RecordRecent(p)
		}
		got := e.Recent()
		if len(got) > MaxRecent {
			t.Fatalf("len %d", len(got))
		}
		if got[0] != paths[len(paths)-1] {
			t.Fatalf("head %q, last recorded %q", got[0], paths[len(paths)-1])
		}
		seen := map[string]bool{}
		for _, p := range got {
			if seen[p] {
				t.Fatalf("duplicate %q in %v", p, got)
			}
			seen[p] = true
		}
	})
}

func TestFavoritesAndExpandedPersist(t *testing.T) {
	kv := localstore.NewMemory()
	e := New(&slowSource{}, kv, nil)
	on, err := e.ToggleFavorite("a.py")
	if err != nil || !on {
		t.Fatalf("on=%v err=%v", on, err)
	}
	_ = e.SetExpanded("lib", true)
	_ = e.SetExpanded("lib", true)

	again := New(&slowSource{}, kv, nil)
	if !slices.Equal(again.Favorites(), []string{"a.py"}) {
		t.Errorf("favorites = %v", again.Favorites())
	}
	if !slices.Equal(again.Expanded(), []string{"lib"}) {
		t.Errorf("expanded = %v", again.Expanded())
	}

	on, _ = again.ToggleFavorite("a.py")
	if on || len(again.Favorites()) != 0 {
		t.Errorf("favorite not removed")
	}
}

func TestForget(t *testing.T) {
	e := New(&slowSource{}, nil, nil)
	_ = e.RecordRecent("a.py")
	_, _ = e.ToggleFavorite("a.py")
	if err := e.Forget("a.py"); err != nil {
		t.Fatal(err)
	}
	if len(e.Recent()) != 0 || len(e.Favorites()) != 0 {
		t.Error("path not forgotten")
	}
}

func TestMoveKeepsPlaceInLists(t *testing.T) {
	e := New(&slowSource{}, nil, nil)
	_ = e.RecordRecent("b.py")
	_ = e.RecordRecent("a.py")
	_ = e.RecordRecent("c.py")
	_, _ = e.ToggleFavorite("a.py")
	if err := e.Move("a.py", "z.py"); err != nil {
		t.Fatal(err)
	}
	if got := e.Recent(); !slices.Equal(got, []string{"c.py", "z.py", "b.py"}) {
		t.Errorf("recent = %v", got)
	}
	if got := e.Favorites(); !slices.Equal(got, []string{"z.py"}) {
		t.Errorf("favorites = %v", got)
	}

	// Moving onto a path already listed leaves one entry.
	if err := e.Move("z.py", "c.py"); err != nil {
		t.Fatal(err)
	}
	if got := e.Recent(); !slices.Equal(got, []string{"c.py", "b.py"}) {
		t.Errorf("recent after collision = %v", got)
	}
}
