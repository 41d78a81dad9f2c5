// Package hub is the in-process registry of live agent sessions used for push.
//
// One Hub is created at process start and shared by every transport. A
// connection is Open from Register until Unregister; delivery is
// at-most-once with no buffering for offline participants.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"wadesk-backend/internal/domain"
	"wadesk-backend/pkg/constants"
	"wadesk-backend/pkg/logger"
	"wadesk-backend/pkg/metrics"
)

// ConnState is the lifecycle state of a connection
type ConnState int32

const (
	StateOpen ConnState = iota
	StateClosed
)

// Connection is one live session of an agent
type Connection struct {
	ID    uint64
	Owner domain.ParticipantRef

	sink  Sink
	state atomic.Int32
}

// State returns the current lifecycle state
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Predicate selects connections for a broadcast
type Predicate func(*Connection) bool

// PresenceTracker records which participants hold at least one session
type PresenceTracker interface {
	SetOnline(ctx context.Context, participantID string) error
	SetOffline(ctx context.Context, participantID string) error
}

// Hub guards the connection set with a single lock
type Hub struct {
	mu      sync.RWMutex
	conns   map[*Connection]struct{}
	byOwner map[string]int

	nextID     atomic.Uint64
	presence   PresenceTracker
	presenceMu sync.Mutex
}

// New creates an empty hub. presence may be nil.
func New(presence PresenceTracker) *Hub {
	return &Hub{
		conns:    make(map[*Connection]struct{}),
		byOwner:  make(map[string]int),
		presence: presence,
	}
}

// Register adds an open connection for owner
func (h *Hub) Register(owner domain.ParticipantRef, sink Sink) *Connection {
	conn := &Connection{
		ID:    h.nextID.Add(1),
		Owner: owner,
		sink:  sink,
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.byOwner[owner.ID]++
	first := h.byOwner[owner.ID] == 1
	h.mu.Unlock()

	metrics.HubConnections.Inc()
	if first {
		h.trackPresence(owner.ID)
	}
	return conn
}

// Unregister closes and removes the connection. Unregistering twice is a no-op.
func (h *Hub) Unregister(conn *Connection) {
	if !conn.state.CompareAndSwap(int32(StateOpen), int32(StateClosed)) {
		return
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.byOwner[conn.Owner.ID]--
	last := h.byOwner[conn.Owner.ID] <= 0
	if last {
		delete(h.byOwner, conn.Owner.ID)
	}
	h.mu.Unlock()

	conn.sink.Close()
	metrics.HubConnections.Dec()
	if last {
		h.trackPresence(conn.Owner.ID)
	}
}

// Broadcast sends payload to every open connection matching predicate and
// returns the number of successful deliveries. Full sinks drop the payload.
func (h *Hub) Broadcast(predicate Predicate, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for conn := range h.conns {
		if conn.State() != StateOpen || !predicate(conn) {
			continue
		}
		if conn.sink.Send(payload) {
			delivered++
			metrics.HubDeliveriesTotal.WithLabelValues("delivered").Inc()
		} else {
			metrics.HubDeliveriesTotal.WithLabelValues("dropped").Inc()
		}
	}
	return delivered
}

// PushEvent delivers an event to the sessions of targets and, when
// alsoBroadcastToAdmins is set, to every admin session. Each connection
// receives the event at most once. Sessions of excludeID are skipped.
func (h *Hub) PushEvent(targets []string, kind string, message *domain.MessageView, alsoBroadcastToAdmins bool, excludeID string) int {
	payload, err := json.Marshal(domain.PushEvent{Event: kind, Message: message})
	if err != nil {
		logger.Error("Failed to encode push event", zap.String("event", kind), zap.Error(err))
		return 0
	}

	targetSet := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		targetSet[id] = struct{}{}
	}

	return h.Broadcast(func(c *Connection) bool {
		if c.Owner.ID == excludeID {
			return false
		}
		if _, ok := targetSet[c.Owner.ID]; ok {
			return true
		}
		return alsoBroadcastToAdmins && c.Owner.IsAdmin()
	}, payload)
}

// Count returns the number of open connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// IsConnected reports whether participantID holds at least one open session
func (h *Hub) IsConnected(participantID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byOwner[participantID] > 0
}

// CloseAll unregisters every connection, used on shutdown
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.Unregister(conn)
	}
}

// trackPresence writes the participant's current state. Updates are
// serialized and re-read under presenceMu so a quick reconnect cannot
// leave a connected participant marked offline.
func (h *Hub) trackPresence(participantID string) {
	if h.presence == nil {
		return
	}

	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.SideEffectTimeout)
	defer cancel()

	online := h.IsConnected(participantID)
	var err error
	if online {
		err = h.presence.SetOnline(ctx, participantID)
	} else {
		err = h.presence.SetOffline(ctx, participantID)
	}
	if err != nil {
		logger.Warn("Failed to update presence",
			zap.String("participant_id", participantID),
			zap.Bool("online", online),
			zap.Error(err))
	}
}
