package mirror

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fakeyudi/playground/internal/collab"
	"github.com/fakeyudi/playground/internal/syncctl"
	"github.com/fakeyudi/playground/internal/tabs"
)

type recordingChannel struct {
	mu        sync.Mutex
	published []collab.Message
}

func (c *recordingChannel) ClientID() string       { return "me" }
func (c *recordingChannel) SubscribeActive(string) {}
func (c *recordingChannel) Unsubscribe(string)     {}

func (c *recordingChannel) Publish(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, collab.Message{Type: collab.TypeEdit, FilePath: path, Content: content})
}

func (c *recordingChannel) last() (collab.Message, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		return collab.Message{}, 0
	}
	return c.published[len(c.published)-1], len(c.published)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setup(t *testing.T) (*Mirror, *syncctl.Controller, *recordingChannel) {
	t.Helper()
	ch := &recordingChannel{}
	ctl := syncctl.New(tabs.NewStore(), ch, nil, quiet())
	m, err := New(t.TempDir(), ctl, nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	ctl.SetEditor(m)
	ctl.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		ctl.Shutdown()
	})
	return m, ctl, ch
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestStartWritesActiveTab(t *testing.T) {
	m, ctl, _ := setup(t)
	active := ctl.Store().Active()
	data, err := os.ReadFile(filepath.Join(m.Dir(), active.Key()))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != active.Content {
		t.Errorf("file = %q, want %q", data, active.Content)
	}
}

func TestExternalWriteBecomesLocalEdit(t *testing.T) {
	m, ctl, ch := setup(t)
	key := ctl.Store().Active().Key()

	if err := os.WriteFile(filepath.Join(m.Dir(), key), []byte("print('edited')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		msg, _ := ch.last()
		return msg.Content == "print('edited')\n"
	})
	if got := ctl.Store().Active(); got.Content != "print('edited')\n" || !got.Unsaved() {
		t.Errorf("active = %+v, unsaved=%v", got, got.Unsaved())
	}
	msg, _ := ch.last()
	if msg.FilePath != key {
		t.Errorf("published to %q, want %q", msg.FilePath, key)
	}
}

func TestNewFileOpensTab(t *testing.T) {
	m, ctl, ch := setup(t)
	if err := os.WriteFile(filepath.Join(m.Dir(), "util.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		msg, _ := ch.last()
		return msg.FilePath == "util.py" && msg.Content == "x = 1\n"
	})
	active := ctl.Store().Active()
	if active.Path != "util.py" || active.Content != "x = 1\n" {
		t.Errorf("active = %+v", active)
	}
	if ctl.SubscribedPath() != "util.py" {
		t.Errorf("subscribed = %q", ctl.SubscribedPath())
	}
}

func TestRemoteEditWrittenWithoutRepublish(t *testing.T) {
	m, ctl, ch := setup(t)
	key := ctl.Store().Active().Key()

	applied := ctl.HandleRemote(collab.Message{
		Type: collab.TypeEdit, FilePath: key, Content: "from peer\n", ClientID: "peer", Timestamp: 10,
	})
	if !applied {
		t.Fatal("remote edit not applied")
	}
	data, err := os.ReadFile(filepath.Join(m.Dir(), key))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from peer\n" {
		t.Errorf("file = %q", data)
	}

	time.Sleep(200 * time.Millisecond)
	if _, n := ch.last(); n != 0 {
		t.Errorf("mirror re-published its own write %d times", n)
	}
}

func TestSwitchKeepsExternalContent(t *testing.T) {
	m, ctl, ch := setup(t)
	first := ctl.Store().Active()
	ctl.Create("other.py", "old\n", true, "other.py")
	if err := ctl.Select(first.ID); err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(m.Dir(), "other.py")
	if err := os.WriteFile(target, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		msg, _ := ch.last()
		return msg.FilePath == "other.py" && msg.Content == "new\n"
	})
	data, _ := os.ReadFile(target)
	if string(data) != "new\n" {
		t.Errorf("file overwritten with %q", data)
	}
}

func TestIgnoredFiles(t *testing.T) {
	m, _, _ := setup(t)
	for _, p := range []string{".main.py.swp", "main.py~", "4913", filepath.Join(".git", "HEAD")} {
		if !m.ignored(filepath.Join(m.Dir(), p)) {
			t.Errorf("%s not ignored", p)
		}
	}
	if m.ignored(filepath.Join(m.Dir(), "src", "main.py")) {
		t.Error("src/main.py ignored")
	}
}

func TestKeyCannotEscape(t *testing.T) {
	m, _, _ := setup(t)
	if _, ok := m.fileFor("../outside.py"); ok {
		t.Error("escaping key accepted")
	}
}

// switchingEditor selects target before forwarding the first push, so the
// mirror receives a remote edit after the active tab has already moved on.
type switchingEditor struct {
	m      *Mirror
	ctl    *syncctl.Controller
	target string
}

func (e *switchingEditor) SetContent(key, content string) {
	if e.target != "" {
		id := e.target
		e.target = ""
		_ = e.ctl.Select(id)
	}
	e.m.SetContent(key, content)
}

func TestRemoteEditWrittenToItsOwnFile(t *testing.T) {
	m, ctl, _ := setup(t)
	a := ctl.Store().Active()
	b := ctl.Create("b.py", "user work\n", true, "b.py")
	if err := ctl.Select(a.ID); err != nil {
		t.Fatal(err)
	}
	ed := &switchingEditor{m: m, ctl: ctl}
	ctl.SetEditor(ed)
	ed.target = b.ID

	if !ctl.HandleRemote(collab.Message{
		Type: collab.TypeEdit, FilePath: a.Key(), Content: "from peer\n", ClientID: "peer", Timestamp: 10,
	}) {
		t.Fatal("remote edit not applied")
	}
	if ctl.Store().Active().ID != b.ID {
		t.Fatal("b.py not active")
	}
	got, err := os.ReadFile(filepath.Join(m.Dir(), "b.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "user work\n" {
		t.Errorf("b.py = %q", got)
	}
	got, err = os.ReadFile(filepath.Join(m.Dir(), a.Key()))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "from peer\n" {
		t.Errorf("%s = %q", a.Key(), got)
	}
}
