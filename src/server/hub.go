package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"insight-stream/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Subscriber
// -----------------------------------------------------------------------------

// Backpressure states. Monotonic: a subscriber never recovers to Normal, the
// only way back is a fresh registration.
const (
	StateNormal int32 = iota
	StateThrottled
	StateDead
)

// Subscriber is one live connection. The hub loop exclusively owns the send
// channel for the subscriber's lifetime and is the only goroutine that closes
// it or advances the backpressure state.
type Subscriber struct {
	ID       string
	send     chan *models.MPush
	state    atomic.Int32
	lastSeen atomic.Int64 // unix milliseconds

	kindsMu sync.RWMutex
	kinds   map[models.MSnapshotKind]struct{} // empty = all kinds

	client *Client // nil for non-websocket subscribers (tests)
}

// -----------------------------------------------------------------------------

// NewSubscriber builds a subscriber with the given queue depth. An empty kind
// list subscribes to everything.
func NewSubscriber(kinds []models.MSnapshotKind, queueDepth int) *Subscriber {
	sub := &Subscriber{
		ID:    uuid.NewString(),
		send:  make(chan *models.MPush, queueDepth),
		kinds: make(map[models.MSnapshotKind]struct{}),
	}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}
	sub.lastSeen.Store(time.Now().UnixMilli())
	return sub
}

// -----------------------------------------------------------------------------

// Recv exposes the delivery channel (read side) to the transport.
func (sub *Subscriber) Recv() <-chan *models.MPush {
	return sub.send
}

// -----------------------------------------------------------------------------

// State returns the current backpressure state.
func (sub *Subscriber) State() int32 {
	return sub.state.Load()
}

// -----------------------------------------------------------------------------

// WantsKind reports whether the subscriber opted into the kind.
func (sub *Subscriber) WantsKind(kind models.MSnapshotKind) bool {
	sub.kindsMu.RLock()
	defer sub.kindsMu.RUnlock()
	if len(sub.kinds) == 0 {
		return true
	}
	_, ok := sub.kinds[kind]
	return ok
}

// -----------------------------------------------------------------------------

// SetKinds replaces the subscription filter.
func (sub *Subscriber) SetKinds(kinds []models.MSnapshotKind) {
	sub.kindsMu.Lock()
	defer sub.kindsMu.Unlock()
	sub.kinds = make(map[models.MSnapshotKind]struct{}, len(kinds))
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}
}

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// directPush is a single-subscriber push routed through the hub loop. Client
// command handlers run on readPump goroutines and must never touch a send
// channel themselves; the loop checks membership before delivering, so a push
// racing the subscriber's removal is dropped instead of hitting a closed
// channel.
type directPush struct {
	sub  *Subscriber
	push *models.MPush
}

// -----------------------------------------------------------------------------

// handleSubscribers is the main Hub loop. One coordinating goroutine owns the
// subscriber set; register, unregister and publish all funnel through here so
// no lock is ever held across subscriber I/O.
func (s *DashboardServer) handleSubscribers() {
	defer close(s.done)

	for {
		select {
		case sub := <-s.register:
			s.subscribers[sub] = struct{}{}
			s.subscriberCount.Add(1)

			// Welcome push: the latest known snapshot per kind, so a newly
			// connected client is not left empty until the next tick.
			s.stateMutex.RLock()
			for kind, snap := range s.latest {
				if sub.WantsKind(kind) {
					s.deliver(sub, &models.MPush{Type: "INITIAL", Snapshot: snap})
				}
			}
			s.stateMutex.RUnlock()

		case sub := <-s.unregister:
			// Idempotent: a subscriber already removed by a failed publish
			// is silently ignored.
			if _, ok := s.subscribers[sub]; ok {
				s.removeSubscriber(sub)
			}

		case dp := <-s.direct:
			if _, ok := s.subscribers[dp.sub]; ok {
				s.deliver(dp.sub, dp.push)
			}

		case snap := <-s.broadcast:
			if !s.recordSnapshot(snap) {
				// A slower-finishing but earlier-scheduled computation lost
				// the race against a newer snapshot. Discard, never publish.
				s.Logger.Debug("Discarding stale %s snapshot (computed_at=%d)", snap.Kind, snap.ComputedAt)
				continue
			}

			push := &models.MPush{Type: "UPDATE", Snapshot: snap}
			for sub := range s.subscribers {
				if !sub.WantsKind(snap.Kind) {
					continue
				}

				if s.deliver(sub, push) {
					continue
				}

				// Bounded send failed: Normal -> Throttled -> Dead. A Dead
				// subscriber is removed within this same publish pass so the
				// remaining subscribers are never delayed by it.
				switch sub.State() {
				case StateNormal:
					sub.state.Store(StateThrottled)
					s.Logger.Warning("Subscriber %s throttled: send queue full", sub.ID)
				default:
					sub.state.Store(StateDead)
					s.removeSubscriber(sub)
					s.Logger.Warning("Subscriber %s dead: removed after repeated send failures", sub.ID)
				}
			}

		case <-s.shutdown:
			for sub := range s.subscribers {
				s.removeSubscriber(sub)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------

// deliver attempts a bounded, non-blocking send to one subscriber.
func (s *DashboardServer) deliver(sub *Subscriber, push *models.MPush) bool {
	select {
	case sub.send <- push:
		sub.lastSeen.Store(time.Now().UnixMilli())
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------

// removeSubscriber is called from the hub loop only.
func (s *DashboardServer) removeSubscriber(sub *Subscriber) {
	delete(s.subscribers, sub)
	close(sub.send)
	s.subscriberCount.Add(-1)
}

// -----------------------------------------------------------------------------

// recordSnapshot stores the snapshot as latest-of-kind. Returns false when a
// newer snapshot of that kind is already held (freshness monotonicity).
func (s *DashboardServer) recordSnapshot(snap *models.MSnapshot) bool {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	// Equal timestamps count as stale: ComputedAt is millisecond-granular
	// and the held snapshot already reflects that instant.
	if cur, ok := s.latest[snap.Kind]; ok && cur.ComputedAt >= snap.ComputedAt {
		return false
	}

	s.latest[snap.Kind] = snap
	if ring, ok := s.history[snap.Kind]; ok {
		ring.Append(snap)
	}
	return true
}

// -----------------------------------------------------------------------------
// Public Hub API (safe from any goroutine)
// -----------------------------------------------------------------------------

// Register adds a subscriber in Normal state and schedules its welcome push.
func (s *DashboardServer) Register(sub *Subscriber) {
	select {
	case s.register <- sub:
	case <-s.shutdown:
	}
}

// -----------------------------------------------------------------------------

// Unregister removes a subscriber; idempotent.
func (s *DashboardServer) Unregister(sub *Subscriber) {
	select {
	case s.unregister <- sub:
	case <-s.shutdown:
	}
}

// -----------------------------------------------------------------------------

// Publish hands a fresh snapshot to the hub loop for fan-out.
func (s *DashboardServer) Publish(snap *models.MSnapshot) {
	select {
	case s.broadcast <- snap:
	case <-s.shutdown:
	}
}

// -----------------------------------------------------------------------------

// sendTo queues a push for one subscriber via the hub loop.
func (s *DashboardServer) sendTo(sub *Subscriber, push *models.MPush) {
	select {
	case s.direct <- directPush{sub: sub, push: push}:
	case <-s.shutdown:
	}
}

// -----------------------------------------------------------------------------

// SubscriberCount reports the live subscriber count.
func (s *DashboardServer) SubscriberCount() int {
	return int(s.subscriberCount.Load())
}

// -----------------------------------------------------------------------------

// LatestSnapshot returns the latest snapshot held for a kind, or nil.
func (s *DashboardServer) LatestSnapshot(kind models.MSnapshotKind) *models.MSnapshot {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.latest[kind]
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	// Subscribed to all kinds until a subscribe command narrows it.
	sub := NewSubscriber(nil, s.Config.Broadcast.ClientQueueDepth)

	client := &Client{
		hub:       s,
		conn:      conn,
		sub:       sub,
		writeWait: time.Duration(s.Config.Broadcast.SendTimeoutMillis) * time.Millisecond,
	}
	sub.client = client

	s.Register(sub)

	// Start goroutines for reading/writing
	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *DashboardServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	switch cmd.Command {
	case "subscribe":
		kinds := make([]models.MSnapshotKind, 0, len(cmd.Kinds))
		for _, k := range cmd.Kinds {
			kind := models.MSnapshotKind(k)
			if kind.Valid() {
				kinds = append(kinds, kind)
			}
		}
		client.sub.SetKinds(kinds)

		// Re-send the latest snapshot for the selected kinds so a filter
		// change behaves like a fresh connect. Routed through the hub loop;
		// this goroutine never owns the send channel.
		s.stateMutex.RLock()
		resend := make([]*models.MSnapshot, 0, len(s.latest))
		for kind, snap := range s.latest {
			if client.sub.WantsKind(kind) {
				resend = append(resend, snap)
			}
		}
		s.stateMutex.RUnlock()

		for _, snap := range resend {
			s.sendTo(client.sub, &models.MPush{Type: "INITIAL", Snapshot: snap})
		}

	case "refresh":
		kind := models.MSnapshotKind(cmd.Kind)
		if !kind.Valid() || s.OnDemand == nil {
			return
		}

		// The refresh result reaches everyone via Publish; an error reaches
		// only this requester.
		go func() {
			timeout := time.Duration(s.Config.Broadcast.RefreshTimeoutSeconds) * time.Second
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if _, err := s.OnDemand(ctx, kind); err != nil {
				s.sendTo(client.sub, &models.MPush{Type: "ERROR", Snapshot: &models.MSnapshot{
					Kind:       kind,
					ComputedAt: time.Now().UnixMilli(),
					Payload:    gin.H{"error": err.Error()},
				}})
			}
		}()
	}
}
