package collab

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/fakeyudi/playground/internal/identity"
)

// DefaultDebounce is the quiet window before a local edit is published.
const DefaultDebounce = 800 * time.Millisecond

// State is the connection state of a Transport.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options configures a Transport.
type Options struct {
	URL      string // ws:// or wss:// endpoint, see ChannelURL
	Identity identity.Provider
	Header   http.Header // sent with the handshake, e.g. Authorization
	Debounce time.Duration

	// Reconnect enables exponential backoff redial after a failed or dropped
	// connection. MaxReconnectElapsed bounds each redial sequence.
	Reconnect           bool
	MaxReconnectElapsed time.Duration

	Dialer  *websocket.Dialer
	Logger  *slog.Logger
	Now     func() time.Time
	OnState func(State)
}

// Transport owns the single collaboration connection of a client session.
type Transport struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	everOpen  bool
	closed    bool
	cancel    context.CancelFunc
	deferred  bool   // a subscription was requested while not open
	current   string // last path handed to SubscribeActive
	onEdit    func(Message)
	onChanged func(Message)

	pending *Message // debounced publish
	pubGen  uint64
	timer   *time.Timer

	writeMu sync.Mutex
	subMu   sync.Mutex // serializes subscription batches
}

// NewTransport returns a disconnected transport.
func NewTransport(opts Options) *Transport {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Identity == nil {
		opts.Identity = identity.Static(identity.ProcessScoped())
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Transport{opts: opts, log: log.With("component", "collab")}
}

// OnEdit registers the handler for inbound edit messages. It replaces any
// previous handler and is invoked from the read goroutine.
func (t *Transport) OnEdit(fn func(Message)) {
	t.mu.Lock()
	t.onEdit = fn
	t.mu.Unlock()
}

// OnStructureChanged registers the handler for project-structure notifications.
func (t *Transport) OnStructureChanged(fn func(Message)) {
	t.mu.Lock()
	t.onChanged = fn
	t.mu.Unlock()
}

// ClientID returns the identity stamped on outbound edits.
func (t *Transport) ClientID() string {
	return t.opts.Identity.ClientID()
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	if t.opts.OnState != nil {
		go t.opts.OnState(s)
	}
}

// Connect establishes the channel in the background. It is a no-op while
// connected or connecting. Failures are logged and leave the transport
// disconnected unless Reconnect is enabled.
func (t *Transport) Connect(ctx context.Context) {
	t.mu.Lock()
	if t.closed || t.state != Disconnected {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(Connecting)
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(runCtx)
}

func (t *Transport) run(ctx context.Context) {
	for {
		conn, err := t.dial(ctx)
		if err != nil {
			t.log.Warn("collaboration channel unavailable", "url", t.opts.URL, "error", err)
			t.mu.Lock()
			t.setStateLocked(Disconnected)
			t.mu.Unlock()
			return
		}
		if !t.opened(conn) {
			_ = conn.Close()
			return
		}
		t.readLoop(conn)
		_ = conn.Close()

		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		stop := t.closed || !t.opts.Reconnect || ctx.Err() != nil
		if stop {
			t.setStateLocked(Disconnected)
		} else {
			t.setStateLocked(Connecting)
		}
		t.mu.Unlock()
		if stop {
			return
		}
		t.log.Info("collaboration channel dropped, reconnecting")
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	op := func() (*websocket.Conn, error) {
		conn, _, err := t.opts.Dialer.DialContext(ctx, t.opts.URL, t.opts.Header)
		return conn, err
	}
	if !t.opts.Reconnect {
		return op()
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(t.opts.MaxReconnectElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.log.Debug("collaboration dial failed", "error", err, "retry_in", next)
		}),
	)
}

// opened installs conn. A subscription requested before the channel opened,
// or held across a reconnect, is sent once for the current path.
func (t *Transport) opened(conn *websocket.Conn) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.conn = conn
	t.setStateLocked(Connected)
	subscribe := t.deferred || (t.everOpen && t.current != "")
	t.deferred = false
	t.everOpen = true
	t.mu.Unlock()

	t.log.Info("collaboration channel connected", "url", t.opts.URL)
	if subscribe {
		t.sendSubscription()
	}
	return true
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.log.Debug("collaboration read ended", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			t.log.Debug("dropping inbound message", "error", err)
			continue
		}
		t.dispatch(msg)
	}
}

func (t *Transport) dispatch(msg Message) {
	t.mu.Lock()
	onEdit, onChanged := t.onEdit, t.onChanged
	t.mu.Unlock()
	switch msg.Type {
	case TypeEdit:
		if onEdit != nil {
			onEdit(msg)
		}
	case TypeStructureChanged:
		if onChanged != nil {
			onChanged(msg)
		}
	}
}

// SubscribeActive moves the single subscription to path: unsubscribe-all,
// then subscribe when path is non-empty. Before the channel is open only the
// latest path is remembered and subscribed once it opens.
func (t *Transport) SubscribeActive(path string) {
	t.mu.Lock()
	t.current = path
	if t.state != Connected || t.conn == nil {
		t.deferred = true
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.sendSubscription()
}

// sendSubscription sends unsubscribe-all and subscribe for the path current
// at send time. Batches never interleave, so the last one sent always names
// the latest path.
func (t *Transport) sendSubscription() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.mu.Lock()
	path := t.current
	t.mu.Unlock()

	msgs := []Message{UnsubscribeAll()}
	if path != "" {
		msgs = append(msgs, Subscribe(path))
	}
	t.send(msgs...)
}

// Unsubscribe drops interest in one path.
func (t *Transport) Unsubscribe(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	if t.current == path {
		t.current = ""
	}
	t.mu.Unlock()
	t.send(Unsubscribe(path))
}

// Publish schedules content of path to be sent once no further Publish call
// arrives for the debounce window. The window is global: a newer call
// replaces the pending path and content.
func (t *Transport) Publish(path, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.pending = &Message{Type: TypeEdit, FilePath: path, Content: content}
	t.pubGen++
	gen := t.pubGen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.opts.Debounce, func() { t.flush(gen) })
}

func (t *Transport) flush(gen uint64) {
	t.mu.Lock()
	if gen != t.pubGen || t.pending == nil || t.closed {
		t.mu.Unlock()
		return
	}
	msg := *t.pending
	t.pending = nil
	t.timer = nil
	t.mu.Unlock()

	msg.ClientID = t.opts.Identity.ClientID()
	msg.Timestamp = t.opts.Now().UnixMilli()
	t.send(msg)
}

// NotifyStructureChanged tells collaborators to refresh their file trees.
func (t *Transport) NotifyStructureChanged() {
	t.send(Message{Type: TypeStructureChanged, ClientID: t.opts.Identity.ClientID()})
}

var errNotOpen = errors.New("channel not open")

// send writes msgs in order as one batch. Delivery is best effort: failures
// are logged and dropped.
func (t *Transport) send(msgs ...Message) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		t.log.Debug("send skipped", "error", errNotOpen, "messages", len(msgs))
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for _, m := range msgs {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(m); err != nil {
			t.log.Debug("send failed", "type", m.Type, "error", err)
			return
		}
	}
}

// Close cancels any pending publish, best-effort unsubscribes the current
// path and closes the connection. The transport cannot be reused.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	current := t.current
	t.mu.Unlock()

	if current != "" {
		t.send(Unsubscribe(current))
	}

	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	cancel := t.cancel
	t.deferred = false
	t.setStateLocked(Disconnected)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return conn.Close()
}
