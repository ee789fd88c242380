// Package relay is the signaling server: it groups connections into rooms
// and routes envelopes between them.
package relay

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

var (
	ErrRoomFull     = errors.New("room is full")
	ErrShuttingDown = errors.New("server shutting down")
)

type admission struct {
	m     *member
	reply chan error
}

// inbound is an envelope read from one member's socket.
type inbound struct {
	from *member
	env  protocol.Envelope
}

// Hub owns every room. All room state is touched only by the Run goroutine;
// the rest of the package talks to it over channels.
type Hub struct {
	maxPeers int
	rooms    map[protocol.RoomID]*room

	register   chan admission
	unregister chan *member
	broadcast  chan inbound
	queries    chan func()

	done chan struct{}
}

// NewHub creates a hub allowing at most maxPeers members per room. Zero or
// less means unlimited.
func NewHub(maxPeers int) *Hub {
	return &Hub{
		maxPeers:   maxPeers,
		rooms:      make(map[protocol.RoomID]*room),
		register:   make(chan admission),
		unregister: make(chan *member),
		broadcast:  make(chan inbound),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and envelopes until ctx is cancelled, then
// closes every member with 1001 "server shutdown".
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.maxPeers > 0 {
		util.LogInfo("Hub started (max %d peers per room)", h.maxPeers)
	} else {
		util.LogInfo("Hub started (no room limit)")
	}

	for {
		select {
		case a := <-h.register:
			a.reply <- h.addMember(a.m)

		case m := <-h.unregister:
			h.removeMember(m)

		case in := <-h.broadcast:
			h.deliver(in.from, in.env)

		case fn := <-h.queries:
			fn()

		case <-ctx.Done():
			for _, r := range h.rooms {
				for _, m := range r.members {
					m.gone = true
					m.closeCode = websocket.CloseGoingAway
					m.closeReason = "server shutdown"
					close(m.send)
				}
			}
			h.rooms = make(map[protocol.RoomID]*room)
			util.LogInfo("Hub stopped")
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Calls from connection goroutines
// ---------------------------------------------------------------------------

// join registers m and assigns its ID.
func (h *Hub) join(m *member) error {
	reply := make(chan error, 1)
	select {
	case h.register <- admission{m: m, reply: reply}:
		return <-reply
	case <-h.done:
		return ErrShuttingDown
	}
}

func (h *Hub) leave(m *member) {
	select {
	case h.unregister <- m:
	case <-h.done:
	}
}

// route hands env, read from m, to the hub. It reports false once the hub
// has stopped.
func (h *Hub) route(m *member, env protocol.Envelope) bool {
	select {
	case h.broadcast <- inbound{from: m, env: env}:
		return true
	case <-h.done:
		return false
	}
}

// query runs fn on the hub goroutine and waits for it.
func (h *Hub) query(fn func()) bool {
	done := make(chan struct{})
	select {
	case h.queries <- func() { fn(); close(done) }:
		<-done
		return true
	case <-h.done:
		return false
	}
}

// Members lists the participants of a room in join order.
func (h *Hub) Members(id protocol.RoomID) []protocol.ParticipantID {
	var out []protocol.ParticipantID
	h.query(func() {
		if r, ok := h.rooms[id]; ok {
			out = r.ids()
		}
	})
	return out
}

// Counts returns the number of rooms and members.
func (h *Hub) Counts() (rooms, peers int) {
	h.query(func() {
		rooms = len(h.rooms)
		for _, r := range h.rooms {
			peers += len(r.members)
		}
	})
	return rooms, peers
}

// ---------------------------------------------------------------------------
// Hub goroutine
// ---------------------------------------------------------------------------

// addMember places m in its room. The requested username is kept when it
// is free in the room; otherwise a UUID is assigned.
func (h *Hub) addMember(m *member) error {
	r, ok := h.rooms[m.room]
	if !ok {
		r = &room{id: m.room}
		h.rooms[m.room] = r
	}

	if h.maxPeers > 0 && len(r.members) >= h.maxPeers {
		if len(r.members) == 0 {
			delete(h.rooms, m.room)
		}
		util.LogWarning("Room %s is full, rejecting %q", m.room, m.id)
		return ErrRoomFull
	}

	if m.id == "" || r.find(m.id) != nil {
		m.id = protocol.ParticipantID(uuid.NewString())
	}
	m.log = util.With("room", string(m.room), "peer", string(m.id))
	r.members = append(r.members, m)

	m.log.Info("Joined (%d in room)", len(r.members))
	return nil
}

// removeMember drops m and tells the rest of the room it hung up, so peers
// do not wait for ICE to time out.
func (h *Hub) removeMember(m *member) {
	r, ok := h.rooms[m.room]
	if !ok || !r.remove(m) {
		return
	}
	m.gone = true
	close(m.send)
	m.log.Info("Left (%d in room)", len(r.members))

	if len(r.members) == 0 {
		delete(h.rooms, m.room)
		return
	}

	env := protocol.Hangup("")
	env.ClientID = m.id
	env.RoomID = m.room
	h.fanout(r, env)
}

// deliver routes env from a current member of its room. Envelopes still
// arriving from a removed member are dropped, even if its ID was reused.
func (h *Hub) deliver(from *member, env protocol.Envelope) {
	if from.gone {
		util.LogDebug("dropping %s: %s is no longer in room %s", env.Kind(), env.ClientID, env.RoomID)
		return
	}
	r, ok := h.rooms[env.RoomID]
	if !ok || r.find(env.ClientID) != from {
		return
	}
	h.fanout(r, env)
}

// fanout sends env to every other member when To is empty, otherwise to the
// addressed member only.
func (h *Hub) fanout(r *room, env protocol.Envelope) {
	data, err := protocol.Encode(env)
	if err != nil {
		util.LogWarning("encode %s from %s: %v", env.Kind(), env.ClientID, err)
		return
	}

	if env.To == "" {
		// push may evict members, so walk a copy.
		for _, m := range append([]*member(nil), r.members...) {
			if m.id != env.ClientID {
				h.push(m, data)
			}
		}
		return
	}

	target := r.find(env.To)
	if target == nil {
		util.LogDebug("dropping %s from %s: %s is not in room %s", env.Kind(), env.ClientID, env.To, r.id)
		return
	}
	h.push(target, data)
}

// push queues data for m, dropping members that stopped draining. Members
// evicted earlier in the same fanout are skipped.
func (h *Hub) push(m *member, data []byte) {
	if m.gone {
		return
	}
	select {
	case m.send <- data:
	default:
		m.log.Warning("send queue full, disconnecting")
		m.closeCode = websocket.CloseTryAgainLater
		m.closeReason = "too slow"
		h.removeMember(m)
	}
}
