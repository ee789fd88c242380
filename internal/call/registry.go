package call

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
)

// maxPendingCandidates bounds the early-candidate buffer per participant.
const maxPendingCandidates = 64

// State is the negotiation state of one participant.
type State int

const (
	StateNone State = iota
	StateConnecting
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is the connection to one remote participant. Fields other than
// State are only touched by the session loop.
type Entry struct {
	ID   protocol.ParticipantID
	Conn PeerConn

	state State
	since time.Time // when state last changed

	// gen identifies the connection; events carrying another gen come from
	// a connection that has already been replaced.
	gen uint64

	localOffer bool // local offer sent, answer not yet applied
	localSet   bool
	remoteSet  bool

	// collided is set when we kept our offer over the peer's. Candidates
	// arriving before its answer belong to the connection it dropped.
	collided bool

	// outbox holds local candidates gathered before the local description
	// was applied.
	outbox []webrtc.ICECandidateInit
}

// PeerInfo is a read-only view of an entry.
type PeerInfo struct {
	ID    protocol.ParticipantID
	State State
	Since time.Time
}

// Registry maps participants to their entries. At most one entry exists per
// ParticipantID. Early remote candidates for participants without an applied
// remote description are kept in a bounded per-participant queue.
type Registry struct {
	mu      sync.RWMutex
	entries map[protocol.ParticipantID]*Entry
	pending map[protocol.ParticipantID][]webrtc.ICECandidateInit
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[protocol.ParticipantID]*Entry),
		pending: make(map[protocol.ParticipantID][]webrtc.ICECandidateInit),
	}
}

// Get returns the entry for id.
func (r *Registry) Get(id protocol.ParticipantID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Insert adds e. It fails if id already has an entry; the caller must remove
// the old one first.
func (r *Registry) Insert(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.ID]; ok {
		return fmt.Errorf("participant %s already has a connection", e.ID)
	}
	r.entries[e.ID] = e
	return nil
}

// Remove deletes and returns the entry for id, or nil.
func (r *Registry) Remove(id protocol.ParticipantID) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	delete(r.entries, id)
	return e
}

// SetState moves e to s.
func (r *Registry) SetState(e *Entry, s State) {
	r.mu.Lock()
	e.state = s
	e.since = time.Now()
	r.mu.Unlock()
}

// State returns the current state of e.
func (r *Registry) State(e *Entry) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.state
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the participants with an entry, sorted.
func (r *Registry) IDs() []protocol.ParticipantID {
	r.mu.RLock()
	ids := make([]protocol.ParticipantID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns every entry's state, sorted by participant.
func (r *Registry) Snapshot() []PeerInfo {
	r.mu.RLock()
	out := make([]PeerInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, PeerInfo{ID: e.ID, State: e.state, Since: e.since})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Buffer queues an early candidate for id. It reports false when the queue
// is full and the candidate was dropped.
func (r *Registry) Buffer(id protocol.ParticipantID, c webrtc.ICECandidateInit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending[id]) >= maxPendingCandidates {
		return false
	}
	r.pending[id] = append(r.pending[id], c)
	return true
}

// TakePending removes and returns the queued candidates for id.
func (r *Registry) TakePending(id protocol.ParticipantID) []webrtc.ICECandidateInit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending[id]
	delete(r.pending, id)
	return out
}

// DropPending discards the queued candidates for id.
func (r *Registry) DropPending(id protocol.ParticipantID) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// ClearPending discards every queued candidate.
func (r *Registry) ClearPending() {
	r.mu.Lock()
	clear(r.pending)
	r.mu.Unlock()
}
