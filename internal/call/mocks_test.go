package call

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/signaling"
	"github.com/1ureka/meshcall/internal/transport"
)

// Compile-time interface checks.
var (
	_ PeerConn = (*mockConn)(nil)
	_ Signaler = (*mockSignaler)(nil)
	_ View     = (*mockView)(nil)
)

// callLog records calls across every mock in order, so tests can assert on
// the relative ordering of connection and signaling operations.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// index returns the position of the first entry equal to s, or -1.
func (l *callLog) index(s string) int {
	for i, e := range l.snapshot() {
		if e == s {
			return i
		}
	}
	return -1
}

// lastIndex returns the position of the last entry equal to s, or -1.
func (l *callLog) lastIndex(s string) int {
	entries := l.snapshot()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i] == s {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Peer connection
// ---------------------------------------------------------------------------

type mockConn struct {
	id  protocol.ParticipantID
	log *callLog
	h   transport.Handlers

	mu        sync.Mutex
	remoteSet bool
	applied   []string
	closed    bool
}

func (c *mockConn) CreateOffer() (webrtc.SessionDescription, error) {
	c.log.add("%s:create-offer", c.id)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-for-" + string(c.id)}, nil
}

func (c *mockConn) CreateAnswer() (webrtc.SessionDescription, error) {
	c.log.add("%s:create-answer", c.id)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-for-" + string(c.id)}, nil
}

func (c *mockConn) SetLocalDescription(sd webrtc.SessionDescription) error {
	c.log.add("%s:set-local:%s", c.id, sd.Type)
	return nil
}

func (c *mockConn) SetRemoteDescription(sd webrtc.SessionDescription) error {
	c.log.add("%s:set-remote:%s", c.id, sd.Type)
	c.mu.Lock()
	c.remoteSet = true
	c.mu.Unlock()
	return nil
}

func (c *mockConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.log.add("%s:add-candidate:%s", c.id, ci.Candidate)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return fmt.Errorf("remote description not set")
	}
	c.applied = append(c.applied, ci.Candidate)
	return nil
}

func (c *mockConn) Close() error {
	c.log.add("%s:close", c.id)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) candidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.applied...)
}

// ice simulates an ICE state change reported by the stack.
func (c *mockConn) ice(state webrtc.ICEConnectionState) { c.h.OnICEState(state) }

// gather simulates a locally gathered candidate.
func (c *mockConn) gather(candidate string) {
	c.h.OnLocalCandidate(&webrtc.ICECandidateInit{Candidate: candidate})
}

type mockDialer struct {
	log *callLog

	// early makes every new connection report a candidate before any
	// description is applied.
	early bool

	mu    sync.Mutex
	conns map[protocol.ParticipantID][]*mockConn
}

func (d *mockDialer) dial(_ context.Context, id protocol.ParticipantID, _ []webrtc.TrackLocal, h transport.Handlers) (PeerConn, error) {
	c := &mockConn{id: id, log: d.log, h: h}
	d.log.add("%s:dial", id)

	d.mu.Lock()
	d.conns[id] = append(d.conns[id], c)
	d.mu.Unlock()

	if d.early {
		c.gather("early-" + string(id))
	}
	return c, nil
}

func (d *mockDialer) all(id protocol.ParticipantID) []*mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*mockConn(nil), d.conns[id]...)
}

func (d *mockDialer) latest(t *testing.T, id protocol.ParticipantID) *mockConn {
	t.Helper()
	conns := d.all(id)
	if len(conns) == 0 {
		t.Fatalf("no connection dialed for %s", id)
	}
	return conns[len(conns)-1]
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

type mockSignaler struct {
	log *callLog
	h   signaling.Handlers

	// forward, when set, receives every sent envelope (an in-memory relay).
	forward func(protocol.Envelope)

	mu          sync.Mutex
	sent        []protocol.Envelope
	closed      bool
	closeCode   int
	closeReason string
}

func (m *mockSignaler) Send(env protocol.Envelope) error {
	if env.Kind() == protocol.KindICECandidate {
		m.log.add("send:%s:%s:%s", env.Kind(), env.To, env.Data.ICECandidate.Candidate)
	} else {
		m.log.add("send:%s:%s", env.Kind(), env.To)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return signaling.ErrClosed
	}
	m.sent = append(m.sent, env)
	m.mu.Unlock()

	if m.forward != nil {
		m.forward(env)
	}
	return nil
}

func (m *mockSignaler) Close(code int, reason string) error {
	m.log.add("signaling:close:%d", code)
	m.mu.Lock()
	m.closed = true
	m.closeCode = code
	m.closeReason = reason
	m.mu.Unlock()
	go m.h.OnClose(signaling.CloseInfo{Code: code, Reason: reason, Clean: true})
	return nil
}

func (m *mockSignaler) sentOf(kind protocol.Kind) []protocol.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []protocol.Envelope
	for _, e := range m.sent {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// View and media
// ---------------------------------------------------------------------------

type mockView struct {
	mu       sync.Mutex
	tiles    map[protocol.ParticipantID]string
	attached map[protocol.ParticipantID]int
}

func newMockView() *mockView {
	return &mockView{
		tiles:    make(map[protocol.ParticipantID]string),
		attached: make(map[protocol.ParticipantID]int),
	}
}

func (v *mockView) AddTile(id protocol.ParticipantID) {
	v.mu.Lock()
	v.tiles[id] = "new"
	v.mu.Unlock()
}

func (v *mockView) RemoveTile(id protocol.ParticipantID) {
	v.mu.Lock()
	delete(v.tiles, id)
	v.mu.Unlock()
}

func (v *mockView) SetState(id protocol.ParticipantID, state string) {
	v.mu.Lock()
	if _, ok := v.tiles[id]; ok {
		v.tiles[id] = state
	}
	v.mu.Unlock()
}

func (v *mockView) Attach(id protocol.ParticipantID, _ *webrtc.TrackRemote) {
	v.mu.Lock()
	v.attached[id]++
	v.mu.Unlock()
}

func (v *mockView) snapshot() map[protocol.ParticipantID]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[protocol.ParticipantID]string, len(v.tiles))
	for k, s := range v.tiles {
		out[k] = s
	}
	return out
}

type mockMedia struct {
	closed atomic.Int32
}

func (m *mockMedia) Tracks() []webrtc.TrackLocal { return nil }
func (m *mockMedia) Close()                      { m.closed.Add(1) }

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

// harness is one participant running a Session against mocks.
type harness struct {
	t      *testing.T
	self   protocol.ParticipantID
	s      *Session
	log    *callLog
	dialer *mockDialer
	sig    *mockSignaler
	view   *mockView
	media  *mockMedia
	ended  chan struct{}
}

func newHarness(t *testing.T, self protocol.ParticipantID, opts ...func(*Options, *mockDialer)) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		t:      t,
		self:   self,
		log:    log,
		dialer: &mockDialer{log: log, conns: make(map[protocol.ParticipantID][]*mockConn)},
		sig:    &mockSignaler{log: log},
		view:   newMockView(),
		media:  &mockMedia{},
		ended:  make(chan struct{}),
	}

	o := Options{
		Self:    self,
		Room:    "42",
		OnEnded: func() { close(h.ended) },
	}
	for _, opt := range opts {
		opt(&o, h.dialer)
	}

	h.s = New(o, Deps{
		Acquire: func(context.Context) (LocalMedia, error) { return h.media, nil },
		Connect: func(_ context.Context, sh signaling.Handlers) (Signaler, error) {
			h.sig.h = sh
			return h.sig, nil
		},
		Dial: h.dialer.dial,
		View: h.view,
	})

	if err := h.s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.s.Call(context.Background()); err != nil {
		t.Fatalf("Call: %v", err)
	}
	t.Cleanup(func() {
		select {
		case <-h.s.Done():
		default:
			h.s.Hangup()
		}
	})
	return h
}

// sync waits until every event queued so far has been handled.
func (h *harness) sync() {
	h.t.Helper()
	done := make(chan struct{})
	h.s.post(commandEvent{fn: func() { close(done) }})
	select {
	case <-done:
	case <-h.s.Done():
	case <-time.After(2 * time.Second):
		h.t.Fatal("session loop did not drain")
	}
}

// deliver hands env, sent by from, to the session as the relay would.
func (h *harness) deliver(from protocol.ParticipantID, env protocol.Envelope) {
	h.t.Helper()
	env.ClientID = from
	h.sig.h.OnMessage(env)
	h.sync()
}

func (h *harness) join(from protocol.ParticipantID) {
	h.t.Helper()
	h.deliver(from, protocol.Join())
}

func (h *harness) ids() []protocol.ParticipantID {
	return h.s.Registry().IDs()
}

func (h *harness) state(id protocol.ParticipantID) State {
	h.t.Helper()
	e, ok := h.s.Registry().Get(id)
	if !ok {
		return StateNone
	}
	return h.s.Registry().State(e)
}

func withTimeout(d time.Duration) func(*Options, *mockDialer) {
	return func(o *Options, _ *mockDialer) { o.NegotiationTimeout = d }
}

func withEarlyCandidates() func(*Options, *mockDialer) {
	return func(_ *Options, d *mockDialer) { d.early = true }
}
