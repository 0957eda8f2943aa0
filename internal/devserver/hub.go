package devserver

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fakeyudi/playground/internal/collab"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 4 << 20
)

type hubMetrics struct {
	connections prometheus.Gauge
	received    *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	dropped     prometheus.Counter
}

func newHubMetrics(reg prometheus.Registerer) hubMetrics {
	f := promauto.With(reg)
	return hubMetrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "playground_relay_connections",
			Help: "Open collaboration connections",
		}),
		received: f.NewCounterVec(prometheus.CounterOpts{
			Name: "playground_relay_messages_received_total",
			Help: "Collaboration messages received by type",
		}, []string{"type"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "playground_relay_messages_delivered_total",
			Help: "Collaboration messages delivered to peers by type",
		}, []string{"type"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "playground_relay_slow_clients_dropped_total",
			Help: "Connections closed because their send buffer was full",
		}),
	}
}

// peer is one relay connection.
type peer struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	// guarded by hub.mu
	subs map[string]bool
}

func (p *peer) close() {
	p.once.Do(func() { close(p.send) })
}

// hub relays edits between peers subscribed to the same path.
type hub struct {
	log     *slog.Logger
	metrics hubMetrics

	mu    sync.Mutex
	peers map[*peer]struct{}
}

func newHub(log *slog.Logger, reg prometheus.Registerer) *hub {
	return &hub{log: log, metrics: newHubMetrics(reg), peers: map[*peer]struct{}{}}
}

// serve runs one connection until it closes.
func (h *hub) serve(conn *websocket.Conn) {
	p := &peer{conn: conn, send: make(chan []byte, sendBuffer), subs: map[string]bool{}}
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	h.metrics.connections.Inc()

	done := make(chan struct{})
	go func() {
		h.writePump(p)
		close(done)
	}()
	h.readPump(p)

	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	p.close()
	<-done
	h.metrics.connections.Dec()
}

func (h *hub) readPump(p *peer) {
	p.conn.SetReadLimit(maxFrame)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("relay read failed", "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := collab.Decode(data)
		if err != nil {
			h.log.Debug("relay dropped malformed frame", "error", err)
			continue
		}
		h.metrics.received.WithLabelValues(msg.Type).Inc()
		h.handle(p, msg)
	}
}

func (h *hub) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer p.conn.Close()
	for {
		select {
		case data, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *hub) handle(from *peer, msg collab.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch msg.Type {
	case collab.TypeSubscribe:
		from.subs[msg.FilePath] = true
	case collab.TypeUnsubscribe:
		delete(from.subs, msg.FilePath)
	case collab.TypeUnsubscribeAll:
		clear(from.subs)
	case collab.TypeEdit:
		h.fanoutLocked(from, msg, func(p *peer) bool { return p.subs[msg.FilePath] })
	case collab.TypeStructureChanged:
		h.fanoutLocked(from, msg, func(*peer) bool { return true })
	}
}

func (h *hub) fanoutLocked(from *peer, msg collab.Message, want func(*peer) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for p := range h.peers {
		if p == from || !want(p) {
			continue
		}
		select {
		case p.send <- data:
			h.metrics.delivered.WithLabelValues(msg.Type).Inc()
		default:
			h.log.Warn("relay peer too slow, disconnecting")
			h.metrics.dropped.Inc()
			delete(h.peers, p)
			p.close()
		}
	}
}

// peerCount returns the number of open connections.
func (h *hub) peerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}
