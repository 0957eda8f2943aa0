package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fakeyudi/playground/internal/identity"
)

// fakeServer accepts one channel connection and records every frame it reads.
type fakeServer struct {
	srv      *httptest.Server
	received chan map[string]any

	mu   sync.Mutex
	conn *websocket.Conn
	up   chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{received: make(chan map[string]any, 64), up: make(chan struct{}, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conn = conn
		fs.mu.Unlock()
		fs.up <- struct{}{}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if json.Unmarshal(data, &m) == nil {
				fs.received <- m
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws"
}

func (fs *fakeServer) send(t *testing.T, raw string) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (fs *fakeServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-fs.received:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func (fs *fakeServer) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case m := <-fs.received:
		t.Fatalf("unexpected frame %v", m)
	case <-time.After(d):
	}
}

func waitState(t *testing.T, tr *Transport, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", tr.State(), want)
}

func TestSubscribeBeforeOpenIsDeferred(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me")})
	defer tr.Close()

	tr.SubscribeActive("main.py")
	tr.Connect(context.Background())

	if m := fs.next(t); m["type"] != TypeUnsubscribeAll {
		t.Fatalf("first frame = %v, want unsubscribe-all", m)
	}
	m := fs.next(t)
	if m["type"] != TypeSubscribe || m["filePath"] != "main.py" {
		t.Fatalf("second frame = %v, want subscribe main.py", m)
	}
}

func TestSubscribeActiveWhenConnected(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me")})
	defer tr.Close()
	tr.Connect(context.Background())
	waitState(t, tr, Connected)

	tr.SubscribeActive("a.go")
	tr.SubscribeActive("b.go")
	var got []string
	for i := 0; i < 4; i++ {
		m := fs.next(t)
		got = append(got, m["type"].(string)+":"+stringField(m, "filePath"))
	}
	want := []string{"unsubscribe-all:", "subscribe:a.go", "unsubscribe-all:", "subscribe:b.go"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func stringField(m map[string]any, k string) string {
	s, _ := m[k].(string)
	return s
}

func TestPublishDebouncesToLatest(t *testing.T) {
	fs := newFakeServer(t)
	now := time.UnixMilli(1_700_000_000_000)
	tr := NewTransport(Options{
		URL:      fs.url(),
		Identity: identity.Static("me"),
		Debounce: 50 * time.Millisecond,
		Now:      func() time.Time { return now },
	})
	defer tr.Close()
	tr.Connect(context.Background())
	waitState(t, tr, Connected)

	tr.Publish("main.py", "a")
	tr.Publish("main.py", "ab")
	tr.Publish("other.py", "abc")

	m := fs.next(t)
	if m["type"] != TypeEdit || m["filePath"] != "other.py" || m["content"] != "abc" {
		t.Fatalf("got %v, want latest edit of other.py", m)
	}
	if m["clientId"] != "me" {
		t.Errorf("clientId = %v", m["clientId"])
	}
	if int64(m["timestamp"].(float64)) != now.UnixMilli() {
		t.Errorf("timestamp = %v", m["timestamp"])
	}
	fs.expectNone(t, 150*time.Millisecond)
}

func TestCloseCancelsPendingPublish(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me"), Debounce: 50 * time.Millisecond})
	tr.Connect(context.Background())
	waitState(t, tr, Connected)

	tr.Publish("main.py", "never sent")
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	fs.expectNone(t, 150*time.Millisecond)
	if tr.State() != Disconnected {
		t.Errorf("state = %s after close", tr.State())
	}
}

func TestCloseUnsubscribesCurrentPath(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me")})
	tr.Connect(context.Background())
	waitState(t, tr, Connected)
	tr.SubscribeActive("main.py")
	fs.next(t)
	fs.next(t)

	_ = tr.Close()
	m := fs.next(t)
	if m["type"] != TypeUnsubscribe || m["filePath"] != "main.py" {
		t.Fatalf("got %v, want unsubscribe main.py", m)
	}
}

func TestInboundDispatch(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me")})
	defer tr.Close()

	edits := make(chan Message, 4)
	changes := make(chan Message, 4)
	tr.OnEdit(func(m Message) { edits <- m })
	tr.OnStructureChanged(func(m Message) { changes <- m })
	tr.Connect(context.Background())
	<-fs.up
	waitState(t, tr, Connected)

	fs.send(t, `not json`)
	fs.send(t, `{"type":"edit","filePath":"main.py","content":"x"}`)
	fs.send(t, `{"type":"edit","filePath":"main.py","content":"hi","clientId":"peer","timestamp":7}`)
	fs.send(t, `{"type":"structure-changed"}`)

	select {
	case m := <-edits:
		if m.Content != "hi" || m.ClientID != "peer" || m.Timestamp != 7 {
			t.Errorf("got %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no edit delivered")
	}
	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no structure change delivered")
	}
	select {
	case m := <-edits:
		t.Errorf("malformed frame delivered: %+v", m)
	default:
	}
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	tr := NewTransport(Options{URL: "ws://127.0.0.1:1/ws", Identity: identity.Static("me")})
	defer tr.Close()
	tr.Connect(context.Background())
	waitState(t, tr, Disconnected)

	// Sends while disconnected are dropped silently.
	tr.NotifyStructureChanged()
	tr.Unsubscribe("main.py")
}

func TestStateString(t *testing.T) {
	if Connected.String() != "connected" || Connecting.String() != "connecting" || Disconnected.String() != "disconnected" {
		t.Error("unexpected state names")
	}
}

func (fs *fakeServer) drop(t *testing.T) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.conn.Close(); err != nil {
		t.Fatalf("server close: %v", err)
	}
}

func frame(m map[string]any) string {
	return stringField(m, "type") + ":" + stringField(m, "filePath")
}

func TestOnlyLatestDeferredSubscriptionSent(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me")})
	defer tr.Close()

	for _, p := range []string{"a.py", "b.py", "c.py"} {
		tr.SubscribeActive(p)
	}
	tr.Connect(context.Background())

	if got := frame(fs.next(t)); got != "unsubscribe-all:" {
		t.Fatalf("first frame = %s", got)
	}
	if got := frame(fs.next(t)); got != "subscribe:c.py" {
		t.Fatalf("second frame = %s", got)
	}
	fs.expectNone(t, 150*time.Millisecond)
}

// Keystrokes 100 ms apart keep restarting the window: one publish lands a
// full window after the last keystroke.
func TestPublishWindowRestartsOnEachKeystroke(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me")})
	defer tr.Close()
	tr.Connect(context.Background())
	waitState(t, tr, Connected)

	start := time.Now()
	for i, content := range []string{"a", "ab", "abc", "abcd"} {
		if i > 0 {
			time.Sleep(100 * time.Millisecond)
		}
		tr.Publish("main.py", content)
	}

	m := fs.next(t)
	elapsed := time.Since(start)
	if m["content"] != "abcd" {
		t.Fatalf("published %v, want abcd", m["content"])
	}
	if elapsed < 300*time.Millisecond+DefaultDebounce || elapsed > 1600*time.Millisecond {
		t.Errorf("published after %s, want about 1.1s", elapsed)
	}
	fs.expectNone(t, 200*time.Millisecond)
}

func TestReconnectResubscribesCurrentPath(t *testing.T) {
	fs := newFakeServer(t)
	var (
		mu     sync.Mutex
		states []State
	)
	count := func(s State) int {
		mu.Lock()
		defer mu.Unlock()
		n := 0
		for _, st := range states {
			if st == s {
				n++
			}
		}
		return n
	}
	tr := NewTransport(Options{
		URL:                 fs.url(),
		Identity:            identity.Static("me"),
		Reconnect:           true,
		MaxReconnectElapsed: 5 * time.Second,
		OnState: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	defer tr.Close()
	tr.Connect(context.Background())
	<-fs.up
	tr.SubscribeActive("main.py")
	waitState(t, tr, Connected)
	fs.next(t)
	fs.next(t)

	fs.drop(t)
	select {
	case <-fs.up:
	case <-time.After(3 * time.Second):
		t.Fatal("no reconnect")
	}
	if got := frame(fs.next(t)); got != "unsubscribe-all:" {
		t.Fatalf("first frame after reconnect = %s", got)
	}
	if got := frame(fs.next(t)); got != "subscribe:main.py" {
		t.Fatalf("second frame after reconnect = %s", got)
	}
	waitState(t, tr, Connected)

	deadline := time.Now().Add(2 * time.Second)
	for (count(Connecting) < 2 || count(Connected) < 2) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if count(Connecting) < 2 || count(Connected) < 2 {
		mu.Lock()
		t.Errorf("states = %v", states)
		mu.Unlock()
	}
}

func TestDropWithoutReconnectStaysDisconnected(t *testing.T) {
	fs := newFakeServer(t)
	tr := NewTransport(Options{URL: fs.url(), Identity: identity.Static("me")})
	defer tr.Close()
	tr.Connect(context.Background())
	<-fs.up
	waitState(t, tr, Connected)

	fs.drop(t)
	waitState(t, tr, Disconnected)
	select {
	case <-fs.up:
		t.Fatal("redialed with reconnect disabled")
	case <-time.After(300 * time.Millisecond):
	}
	if tr.State() != Disconnected {
		t.Errorf("state = %s", tr.State())
	}
}
