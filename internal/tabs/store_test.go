package tabs

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// Feature: playground, Property 1: there is always at least one tab and the active tab exists
func TestStoreNeverEmpty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			all := s.Tabs()
			pick := all[rapid.IntRange(0, len(all)-1).Draw(t, "pick")].ID

			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				s.AddTab()
			case 1:
				before := s.Len()
				err := s.CloseTab(pick)
				if before == 1 {
					if !errors.Is(err, ErrLastTab) {
						t.Fatalf("CloseTab on last tab: got %v, want ErrLastTab", err)
					}
					if s.Len() != 1 {
						t.Fatalf("CloseTab on last tab changed tab count to %d", s.Len())
					}
				} else if err != nil {
					t.Fatalf("CloseTab: %v", err)
				}
			case 2:
				if err := s.DeleteTab(pick); err != nil {
					t.Fatalf("DeleteTab: %v", err)
				}
			case 3:
				s.CloseAll()
			case 4:
				if _, err := s.DuplicateTab(pick); err != nil {
					t.Fatalf("DuplicateTab: %v", err)
				}
			case 5:
				if err := s.CloseOthers(pick); err != nil {
					t.Fatalf("CloseOthers: %v", err)
				}
			case 6:
				if err := s.SelectTab(pick); err != nil {
					t.Fatalf("SelectTab: %v", err)
				}
			}

			if s.Len() == 0 {
				t.Fatal("store reached zero tabs")
			}
			if _, ok := s.Get(s.ActiveID()); !ok {
				t.Fatalf("active tab %q does not exist", s.ActiveID())
			}
		}
	})
}

// Feature: playground, Property 2: tab ids are never reused
func TestTabIDsNeverReused(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		seen := map[string]bool{s.ActiveID(): true}
		n := rapid.IntRange(1, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			var id string
			if rapid.Bool().Draw(t, "add") {
				id = s.AddTab().ID
			} else {
				s.CloseAll()
				id = s.ActiveID()
			}
			if seen[id] {
				t.Fatalf("id %q reused", id)
			}
			seen[id] = true
		}
	})
}

func TestDeleteLastTabResetsToDefault(t *testing.T) {
	s := NewStore()
	first := s.Active()
	if err := s.UpdateContent(first.ID, "edited"); err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}

	if err := s.DeleteTab(first.ID); err != nil {
		t.Fatalf("DeleteTab: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 tab, got %d", s.Len())
	}
	fresh := s.Active()
	if fresh.ID == first.ID {
		t.Fatal("expected a fresh tab id after deleting the last tab")
	}
	if fresh.Content == "edited" {
		t.Error("fresh default tab kept the deleted tab's content")
	}
}

func TestCloseTabRefusesLast(t *testing.T) {
	s := NewStore()
	id := s.ActiveID()
	if err := s.CloseTab(id); !errors.Is(err, ErrLastTab) {
		t.Fatalf("expected ErrLastTab, got %v", err)
	}
	if s.ActiveID() != id {
		t.Error("CloseTab on the last tab changed the active tab")
	}
}

func TestCloseActiveSelectsPreceding(t *testing.T) {
	s := NewStore()
	a := s.ActiveID()
	b := s.AddTab().ID
	c := s.AddTab().ID

	if err := s.SelectTab(b); err != nil {
		t.Fatalf("SelectTab: %v", err)
	}
	if err := s.CloseTab(b); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	if s.ActiveID() != a {
		t.Errorf("expected preceding tab %q active, got %q", a, s.ActiveID())
	}

	if err := s.SelectTab(a); err != nil {
		t.Fatalf("SelectTab: %v", err)
	}
	if err := s.CloseTab(a); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	if s.ActiveID() != c {
		t.Errorf("expected index 0 (%q) active after closing the first tab, got %q", c, s.ActiveID())
	}
}

func TestCloseInactiveKeepsActive(t *testing.T) {
	s := NewStore()
	a := s.ActiveID()
	b := s.AddTab().ID
	if err := s.CloseTab(a); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	if s.ActiveID() != b {
		t.Errorf("expected %q to stay active, got %q", b, s.ActiveID())
	}
}

func TestDuplicateNaming(t *testing.T) {
	s := NewStore()
	orig := s.CreateTab("main.py", "x = 1", true, "main.py")
	if _, err := s.DuplicateTab(orig.ID); err != nil {
		t.Fatalf("DuplicateTab: %v", err)
	}
	second, err := s.DuplicateTab(orig.ID)
	if err != nil {
		t.Fatalf("DuplicateTab: %v", err)
	}
	if second.Name != "main.py Copy 2" {
		t.Errorf("expected %q, got %q", "main.py Copy 2", second.Name)
	}
	third, _ := s.DuplicateTab(orig.ID)
	if third.Name != "main.py Copy 3" {
		t.Errorf("expected %q, got %q", "main.py Copy 3", third.Name)
	}
	if second.Path != "" || second.Content != "x = 1" {
		t.Errorf("duplicate should be a scratch copy, got %+v", second)
	}
}

func TestDuplicateInsertsAfterSource(t *testing.T) {
	s := NewStore()
	first := s.ActiveID()
	s.AddTab()
	dup, err := s.DuplicateTab(first)
	if err != nil {
		t.Fatalf("DuplicateTab: %v", err)
	}
	all := s.Tabs()
	if all[1].ID != dup.ID {
		t.Errorf("expected duplicate at index 1, got order %v", all)
	}
	if s.ActiveID() != dup.ID {
		t.Error("expected duplicate to be selected")
	}
}

func TestCloseOthersAndCloseAll(t *testing.T) {
	s := NewStore()
	s.AddTab()
	keep := s.AddTab().ID
	s.AddTab()

	if err := s.CloseOthers(keep); err != nil {
		t.Fatalf("CloseOthers: %v", err)
	}
	if s.Len() != 1 || s.ActiveID() != keep {
		t.Fatalf("expected only %q, got %d tabs active=%q", keep, s.Len(), s.ActiveID())
	}

	s.CloseAll()
	if s.Len() != 1 || s.ActiveID() == keep {
		t.Fatalf("CloseAll should leave a single fresh tab")
	}
}

func TestUnsavedTracking(t *testing.T) {
	s := NewStore()
	tab := s.CreateTab("a.py", "v1", true, "a.py")
	if tab.Unsaved() {
		t.Fatal("freshly opened tab should be saved")
	}
	_ = s.UpdateContent(tab.ID, "v2")
	got, _ := s.Get(tab.ID)
	if !got.Unsaved() {
		t.Fatal("edited tab should be unsaved")
	}
	_ = s.MarkSaved(tab.ID, "v2")
	got, _ = s.Get(tab.ID)
	if got.Unsaved() {
		t.Fatal("tab should be saved after MarkSaved with current content")
	}
}

func TestChangeLanguageRespectsCustomName(t *testing.T) {
	s := NewStore()
	def := s.ActiveID()
	if err := s.ChangeLanguage(def, 60); err != nil {
		t.Fatalf("ChangeLanguage: %v", err)
	}
	got, _ := s.Get(def)
	if got.Name != "main.go" {
		t.Errorf("expected automatic rename to main.go, got %q", got.Name)
	}

	custom := s.CreateTab("solver.py", "", true, "solver.py")
	_ = s.ChangeLanguage(custom.ID, 63)
	got, _ = s.Get(custom.ID)
	if got.Name != "solver.py" {
		t.Errorf("custom name should be kept, got %q", got.Name)
	}
	if got.LanguageID != 63 {
		t.Errorf("expected language 63, got %d", got.LanguageID)
	}
}

func TestKeyFallsBackToName(t *testing.T) {
	scratch := Tab{Name: "notes.txt"}
	if scratch.Key() != "notes.txt" {
		t.Errorf("expected name as key, got %q", scratch.Key())
	}
	saved := Tab{Name: "a.py", Path: "src/a.py"}
	if saved.Key() != "src/a.py" {
		t.Errorf("expected path as key, got %q", saved.Key())
	}
}

func TestAddTabUniqueNames(t *testing.T) {
	s := NewStore()
	a := s.AddTab()
	b := s.AddTab()
	if a.Name == s.Tabs()[0].Name || a.Name == b.Name {
		t.Errorf("expected unique names, got %q %q %q", s.Tabs()[0].Name, a.Name, b.Name)
	}
}

func TestUnknownTab(t *testing.T) {
	s := NewStore()
	for name, err := range map[string]error{
		"select":    s.SelectTab("nope"),
		"update":    s.UpdateContent("nope", ""),
		"rename":    s.RenameTab("nope", "x.py", ""),
		"close":     s.CloseTab("nope"),
		"delete":    s.DeleteTab("nope"),
		"closeOthr": s.CloseOthers("nope"),
	} {
		if !errors.Is(err, ErrTabNotFound) {
			t.Errorf("%s: expected ErrTabNotFound, got %v", name, err)
		}
	}
}
