// Package transport implements the Messaging Transport (§4.5): two logical
// pub/sub sockets between the conductor and its agents, realized over
// gorilla/websocket. It is grounded on the teacher's
// internal/infrastructure/websocket Hub/Client pair, generalized from
// "broadcast a WSEvent to clients subscribed to a workflow/execution" to
// "publish an Envelope to clients subscribed to a topic" (an agent id,
// "broadcast", or "status-updates"), and from JSON wire frames to the
// msgpack-encoded protocol.Envelope.
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowconductor/conductor/internal/application/protocol"
	"github.com/flowconductor/conductor/internal/infrastructure/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Inbound is one envelope received from an agent, tagged with the
// connection's agent id (unset until the connection's first envelope that
// carries a non-empty agent id).
type Inbound struct {
	AgentID  string
	Envelope protocol.Envelope
}

// Hub is the Publisher side (§4.5): conductor -> agents, fanned out by
// topic.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*pubConn]struct{}
	byTopic map[protocol.Topic]map[*pubConn]struct{}
	logger  *logger.Logger
}

// NewHub returns an empty publisher Hub. The Hub has no run loop of its
// own: ServeHTTP and ServeStatusHTTP start a write pump per connection.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		conns:   make(map[*pubConn]struct{}),
		byTopic: make(map[protocol.Topic]map[*pubConn]struct{}),
		logger:  log,
	}
}

type pubConn struct {
	conn   *websocket.Conn
	send   chan protocol.Envelope
	topics map[protocol.Topic]struct{}
	mu     sync.RWMutex
}

// ServeHTTP upgrades the publish-port connection and subscribes the agent
// to its unicast topic plus the broadcast topic; status-updates clients
// connect through ServeStatusHTTP instead.
func (h *Hub) ServeHTTP(agentID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	pc := &pubConn{
		conn:   conn,
		send:   make(chan protocol.Envelope, sendBufferSize),
		topics: make(map[protocol.Topic]struct{}),
	}

	h.mu.Lock()
	h.conns[pc] = struct{}{}
	for _, topic := range []protocol.Topic{protocol.AgentTopic(agentID), protocol.TopicBroadcast} {
		pc.topics[topic] = struct{}{}
		if h.byTopic[topic] == nil {
			h.byTopic[topic] = make(map[*pubConn]struct{})
		}
		h.byTopic[topic][pc] = struct{}{}
	}
	h.mu.Unlock()

	go h.writePump(pc)
	return nil
}

// ServeStatusHTTP upgrades a UI client connection and subscribes it to the
// status-updates topic, the Status Publisher's fan-out socket (§4.5,
// §4.7). Unlike ServeHTTP's agent connections, this socket is
// publish-only from the conductor's side; the read loop only answers
// pings and detects the client going away.
func (h *Hub) ServeStatusHTTP(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	pc := &pubConn{
		conn:   conn,
		send:   make(chan protocol.Envelope, sendBufferSize),
		topics: map[protocol.Topic]struct{}{protocol.TopicStatusUpdates: {}},
	}

	h.mu.Lock()
	h.conns[pc] = struct{}{}
	if h.byTopic[protocol.TopicStatusUpdates] == nil {
		h.byTopic[protocol.TopicStatusUpdates] = make(map[*pubConn]struct{})
	}
	h.byTopic[protocol.TopicStatusUpdates][pc] = struct{}{}
	h.mu.Unlock()

	go h.writePump(pc)
	go h.discardReads(pc)
	return nil
}

func (h *Hub) discardReads(pc *pubConn) {
	pc.conn.SetReadLimit(maxMessageSize)
	pc.conn.SetReadDeadline(time.Now().Add(pongWait))
	pc.conn.SetPongHandler(func(string) error {
		pc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := pc.conn.ReadMessage(); err != nil {
			pc.conn.Close()
			return
		}
	}
}

func (h *Hub) writePump(pc *pubConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		pc.conn.Close()
		h.removeConn(pc)
	}()

	for {
		select {
		case env, ok := <-pc.send:
			pc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				pc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := protocol.Encode(env)
			if err != nil {
				h.logger.Error("transport: encode failed", "err", err)
				continue
			}
			if err := pc.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			pc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := pc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) removeConn(pc *pubConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[pc]; !ok {
		return
	}
	delete(h.conns, pc)
	for topic := range pc.topics {
		delete(h.byTopic[topic], pc)
	}
}

// Publish sends env to every connection currently subscribed to topic.
// Delivery is best-effort: a connection whose send buffer is full has the
// message dropped for it, per §4.5's "best-effort" guarantee.
func (h *Hub) Publish(topic protocol.Topic, env protocol.Envelope) {
	h.mu.RLock()
	targets := make([]*pubConn, 0, len(h.byTopic[topic]))
	for pc := range h.byTopic[topic] {
		targets = append(targets, pc)
	}
	h.mu.RUnlock()

	for _, pc := range targets {
		select {
		case pc.send <- env:
		default:
			h.logger.Warn("transport: publisher buffer full, dropping message", "topic", topic, "msg", env.Msg)
		}
	}
}

// SubscriberServer is the Subscriber side (§4.5): agents -> conductor.
// Every received envelope, tagged with its connection's agent id once
// known, is funneled onto a single inbound channel the controller reads
// from.
type SubscriberServer struct {
	inbound chan Inbound
	logger  *logger.Logger
}

// NewSubscriberServer returns a SubscriberServer with the given inbound
// channel buffer size.
func NewSubscriberServer(bufSize int, log *logger.Logger) *SubscriberServer {
	return &SubscriberServer{
		inbound: make(chan Inbound, bufSize),
		logger:  log,
	}
}

// Inbound returns the channel the controller reads agent messages from.
func (s *SubscriberServer) Inbound() <-chan Inbound {
	return s.inbound
}

// ServeHTTP upgrades one agent's subscribe-port connection and pumps its
// messages onto the inbound channel until the connection closes.
func (s *SubscriberServer) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var agentID string
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("transport: subscriber unexpected close", "agent_id", agentID, "err", err)
			}
			return nil
		}

		env, err := protocol.Decode(payload)
		if err != nil {
			s.logger.Warn("transport: dropping malformed envelope", "agent_id", agentID, "err", err)
			continue
		}
		if env.AgentID != "" {
			agentID = env.AgentID
		}

		s.inbound <- Inbound{AgentID: agentID, Envelope: env}
	}
}
