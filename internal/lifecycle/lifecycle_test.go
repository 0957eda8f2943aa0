package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/fakeyudi/playground/internal/api"
	"github.com/fakeyudi/playground/internal/syncctl"
	"github.com/fakeyudi/playground/internal/tabs"
)

type nopChannel struct{}

func (nopChannel) ClientID() string             { return "self" }
func (nopChannel) SubscribeActive(string)       {}
func (nopChannel) Unsubscribe(string)           {}
func (nopChannel) Publish(path, content string) {}

type fakeFiles struct {
	files   map[string]string
	calls   []string
	failErr error
}

func newFakeFiles() *fakeFiles { return &fakeFiles{files: map[string]string{}} }

func (f *fakeFiles) ReadFile(_ context.Context, p string) (string, error) {
	f.calls = append(f.calls, "read:"+p)
	if f.failErr != nil {
		return "", f.failErr
	}
	c, ok := f.files[p]
	if !ok {
		return "", &api.ServiceError{Status: http.StatusNotFound, Message: "not found"}
	}
	return c, nil
}

func (f *fakeFiles) RenameFile(_ context.Context, oldPath, newName string) (string, error) {
	f.calls = append(f.calls, "rename:"+oldPath+"->"+newName)
	if f.failErr != nil {
		return "", f.failErr
	}
	return "srv/" + newName, nil
}

func (f *fakeFiles) DeleteFile(_ context.Context, p string) error {
	f.calls = append(f.calls, "delete:"+p)
	return f.failErr
}

func (f *fakeFiles) CreateFile(_ context.Context, p, content string) error {
	f.calls = append(f.calls, "create:"+p)
	if f.failErr != nil {
		return f.failErr
	}
	f.files[p] = content
	return nil
}

func (f *fakeFiles) CreateFolder(_ context.Context, p string) error {
	f.calls = append(f.calls, "folder:"+p)
	return f.failErr
}

type counter struct{ n int }

func (c *counter) NotifyStructureChanged()       { c.n++ }
func (c *counter) Refresh(context.Context) error { c.n++; return nil }
func (c *counter) RecordRecent(string) error     { c.n++; return nil }

type fixture struct {
	ctl    *syncctl.Controller
	files  *fakeFiles
	notify *counter
	tree   *counter
	recent *counter
	coord  *Coordinator
}

func newFixture(confirm Confirmer) *fixture {
	f := &fixture{
		ctl:    syncctl.New(tabs.NewStore(), nopChannel{}, nil, nil),
		files:  newFakeFiles(),
		notify: &counter{},
		tree:   &counter{},
		recent: &counter{},
	}
	f.ctl.Start()
	f.coord = New(Options{
		Workspace: f.ctl,
		Files:     f.files,
		Confirm:   confirm,
		Notify:    f.notify,
		Tree:      f.tree,
		Recent:    f.recent,
	})
	return f
}

func TestRenameRejectsBadExtensionWithoutNetwork(t *testing.T) {
	f := newFixture(nil)
	id := f.ctl.Store().ActiveID()
	_, err := f.coord.Rename(context.Background(), id, "notes.exe")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(f.files.calls) != 0 {
		t.Errorf("network called: %v", f.files.calls)
	}
}

func TestRenameScratchIsLocal(t *testing.T) {
	f := newFixture(nil)
	id := f.ctl.Store().ActiveID()
	got, err := f.coord.Rename(context.Background(), id, "hello.py")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "hello.py" || got.Path != "" {
		t.Errorf("got %+v", got)
	}
	if len(f.files.calls) != 0 || f.notify.n != 0 {
		t.Errorf("scratch rename reached the server: %v", f.files.calls)
	}
}

func TestRenameUsesServerPath(t *testing.T) {
	f := newFixture(nil)
	tab := f.ctl.Create("a.py", "", true, "src/a.py")
	got, err := f.coord.Rename(context.Background(), tab.ID, "b.py")
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "srv/b.py" || got.Name != "b.py" {
		t.Errorf("got %+v", got)
	}
	if f.notify.n != 1 {
		t.Errorf("notifications = %d", f.notify.n)
	}
	if f.ctl.SubscribedPath() != "srv/b.py" {
		t.Errorf("subscribed %q", f.ctl.SubscribedPath())
	}
}

func TestRenameFailureLeavesTab(t *testing.T) {
	f := newFixture(nil)
	tab := f.ctl.Create("a.py", "", true, "src/a.py")
	f.files.failErr = &api.ServiceError{Status: http.StatusConflict, Message: "exists"}
	_, err := f.coord.Rename(context.Background(), tab.ID, "b.py")
	if !errors.Is(err, api.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, _ := f.ctl.Store().Get(tab.ID)
	if got.Path != "src/a.py" || got.Name != "a.py" {
		t.Errorf("tab changed: %+v", got)
	}
	if f.notify.n != 0 {
		t.Error("notified on failure")
	}
}

func TestDeleteDeclined(t *testing.T) {
	f := newFixture(ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil }))
	tab := f.ctl.Create("a.py", "", true, "src/a.py")
	if err := f.coord.Delete(context.Background(), tab.ID); !errors.Is(err, ErrCancelled) {
		t.Fatalf("got %v, want ErrCancelled", err)
	}
	if _, ok := f.ctl.Store().Get(tab.ID); !ok {
		t.Error("tab removed after decline")
	}
	if len(f.files.calls) != 0 {
		t.Errorf("network called: %v", f.files.calls)
	}
}

func TestDeleteConfirmed(t *testing.T) {
	f := newFixture(ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil }))
	tab := f.ctl.Create("a.py", "", true, "src/a.py")
	if err := f.coord.Delete(context.Background(), tab.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.ctl.Store().Get(tab.ID); ok {
		t.Error("tab still open")
	}
	if f.files.calls[0] != "delete:src/a.py" {
		t.Errorf("calls = %v", f.files.calls)
	}
	if f.notify.n != 1 {
		t.Errorf("notifications = %d", f.notify.n)
	}
}

func TestDeleteFailureKeepsTab(t *testing.T) {
	f := newFixture(nil)
	tab := f.ctl.Create("a.py", "", true, "src/a.py")
	f.files.failErr = errors.New("network down")
	if err := f.coord.Delete(context.Background(), tab.ID); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := f.ctl.Store().Get(tab.ID); !ok {
		t.Error("tab removed after failed delete")
	}
}

func TestDeleteLastTabResets(t *testing.T) {
	f := newFixture(nil)
	tab := f.ctl.Create("a.py", "", true, "src/a.py")
	if err := f.ctl.CloseOthers(tab.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Delete(context.Background(), tab.ID); err != nil {
		t.Fatal(err)
	}
	if f.ctl.Store().Len() != 1 || f.ctl.Store().Active().Name != "main.py" {
		t.Errorf("expected a fresh default tab, got %+v", f.ctl.Store().Tabs())
	}
}

func TestCreateFileOpens(t *testing.T) {
	f := newFixture(nil)
	tab, err := f.coord.CreateFile(context.Background(), "lib/util.go", "package lib\n", true)
	if err != nil {
		t.Fatal(err)
	}
	if tab.Path != "lib/util.go" || tab.Name != "util.go" {
		t.Errorf("got %+v", tab)
	}
	if f.ctl.Store().ActiveID() != tab.ID {
		t.Error("created tab not active")
	}
	if f.tree.n != 1 || f.notify.n != 1 || f.recent.n != 1 {
		t.Errorf("tree=%d notify=%d recent=%d", f.tree.n, f.notify.n, f.recent.n)
	}
}

func TestCreateFileValidation(t *testing.T) {
	f := newFixture(nil)
	for _, p := range []string{"", "lib/", "../x.py", "lib/run.sh"} {
		_, err := f.coord.CreateFile(context.Background(), p, "", false)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%q: expected ValidationError, got %v", p, err)
		}
	}
	if len(f.files.calls) != 0 {
		t.Errorf("network called: %v", f.files.calls)
	}
}

func TestCreateFolder(t *testing.T) {
	f := newFixture(nil)
	if err := f.coord.CreateFolder(context.Background(), "  "); err == nil {
		t.Error("expected validation error for blank folder")
	}
	if err := f.coord.CreateFolder(context.Background(), "/pkg/"); err != nil {
		t.Fatal(err)
	}
	if f.files.calls[0] != "folder:pkg" {
		t.Errorf("calls = %v", f.files.calls)
	}
}

func TestOpenSelectsExistingTab(t *testing.T) {
	f := newFixture(nil)
	a := f.ctl.Create("a.py", "A", true, "src/a.py")
	f.ctl.Add()
	got, err := f.coord.Open(context.Background(), "src/a.py")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || f.ctl.Store().ActiveID() != a.ID {
		t.Error("existing tab not selected")
	}
	if len(f.files.calls) != 0 {
		t.Errorf("unexpected reads: %v", f.files.calls)
	}
}

func TestOpenLoadsFromServer(t *testing.T) {
	f := newFixture(nil)
	f.files.files["src/b.py"] = "print('b')"
	got, err := f.coord.Open(context.Background(), "src/b.py")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "print('b')" || got.Unsaved() {
		t.Errorf("got %+v unsaved=%v", got, got.Unsaved())
	}
	if f.recent.n != 1 {
		t.Errorf("recent = %d", f.recent.n)
	}
}
