// Package call runs a multi-party mesh call: it owns the local media, the
// signaling channel and one peer connection per remote participant.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/signaling"
	"github.com/1ureka/meshcall/internal/util"
)

const (
	eventBuffer = 256

	// Upper bound on how often stalled negotiations are checked.
	maxTimeoutCheck = time.Second

	// WebSocket normal closure, sent when the user hangs up.
	hangupCloseCode   = 1000
	hangupCloseReason = "ending call"
)

// Options configure a Session.
type Options struct {
	// Self is the participant ID requested from the relay. It is replaced
	// by the ID the relay addresses us with, once seen.
	Self protocol.ParticipantID
	Room protocol.RoomID

	// NegotiationTimeout tears down entries that do not reach CONNECTED in
	// time. Zero or negative disables it.
	NegotiationTimeout time.Duration

	// OnEnded runs once after the call has been fully torn down.
	OnEnded func()
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Acquire func(ctx context.Context) (LocalMedia, error)
	Connect Connector
	Dial    Dialer
	View    View
}

type phase int

const (
	phaseIdle phase = iota
	phaseReady
	phaseInCall
	phaseEnded
)

// Session is the controller for one call. Start acquires local media, Call
// joins the room and Hangup leaves it. A Session runs at most one call.
//
// All signaling, connection and command events are handled by a single
// loop goroutine in arrival order.
type Session struct {
	opts Options
	deps Deps
	reg  *Registry
	log  util.Logger

	mu     sync.Mutex
	phase  phase
	media  LocalMedia
	sig    Signaler
	ctx    context.Context
	cancel context.CancelFunc

	// attempt counts Connect calls. It is fixed before the loop starts.
	attempt uint64

	events chan event
	done   chan struct{}

	// Loop-owned.
	self  protocol.ParticipantID
	gen   uint64
	ended bool
}

// New creates an idle Session.
func New(opts Options, deps Deps) *Session {
	if deps.View == nil {
		deps.View = nopView{}
	}
	return &Session{
		opts:   opts,
		deps:   deps,
		reg:    NewRegistry(),
		log:    util.With("room", string(opts.Room)),
		self:   opts.Self,
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Registry returns the peer registry. Safe for concurrent reads.
func (s *Session) Registry() *Registry { return s.reg }

// Peers returns a snapshot of every remote participant's state.
func (s *Session) Peers() []PeerInfo { return s.reg.Snapshot() }

// Done is closed once a started call has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start acquires the local media. Its error, typically a
// *media.AcquisitionError, is the one failure meant for the user.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case phaseIdle:
	case phaseEnded:
		return ErrEnded
	default:
		return ErrAlreadyStarted
	}

	m, err := s.deps.Acquire(ctx)
	if err != nil {
		return err
	}
	s.media = m
	s.phase = phaseReady
	util.LogSuccess("Local media ready (%d tracks)", len(m.Tracks()))
	return nil
}

// Call opens the signaling channel, which announces us to the room, and
// starts the event loop. Peer setup is driven entirely by inbound messages.
func (s *Session) Call(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case phaseIdle:
		return ErrNotStarted
	case phaseInCall:
		return ErrInCall
	case phaseEnded:
		return ErrEnded
	}

	s.attempt++
	attempt := s.attempt

	callCtx, cancel := context.WithCancel(ctx)
	sig, err := s.deps.Connect(callCtx, signaling.Handlers{
		OnMessage: func(env protocol.Envelope) { s.post(envelopeEvent{attempt: attempt, env: env}) },
		OnClose:   func(info signaling.CloseInfo) { s.post(closeEvent{attempt: attempt, info: info}) },
	})
	if err != nil {
		cancel()
		return err
	}

	s.sig = sig
	s.ctx = callCtx
	s.cancel = cancel
	s.phase = phaseInCall

	go s.run(callCtx)
	return nil
}

// Hangup leaves the call: it notifies the room, tears down every peer,
// closes the signaling channel and releases the local media. It returns
// once teardown is complete.
func (s *Session) Hangup() error {
	s.mu.Lock()
	inCall := s.phase == phaseInCall
	s.mu.Unlock()
	if !inCall {
		return ErrNotInCall
	}

	s.post(commandEvent{fn: func() { s.endCall(true, "local hangup") }})
	<-s.done
	return nil
}

// post queues ev for the loop. Events raised after the loop exited are
// dropped.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	var tick <-chan time.Time
	if timeout := s.opts.NegotiationTimeout; timeout > 0 {
		ticker := time.NewTicker(min(timeout/2, maxTimeoutCheck))
		defer ticker.Stop()
		tick = ticker.C
	}

	for !s.ended {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		case now := <-tick:
			s.expireStalled(now)
		case <-ctx.Done():
			s.endCall(true, "interrupted")
		}
	}
}

func (s *Session) dispatch(ev event) {
	switch ev := ev.(type) {
	case envelopeEvent:
		if ev.attempt != s.attempt {
			return
		}
		s.handleEnvelope(ev.env)
	case candidateEvent:
		s.handleLocalCandidate(ev)
	case iceStateEvent:
		s.handleICEState(ev)
	case trackEvent:
		s.handleTrack(ev)
	case closeEvent:
		if ev.attempt != s.attempt {
			return
		}
		s.handleClose(ev.info)
	case commandEvent:
		ev.fn()
	}
}

// handleClose ends the call when the channel goes away on its own. There is
// no reconnect.
func (s *Session) handleClose(info signaling.CloseInfo) {
	if s.ended {
		return
	}
	if info.Clean {
		s.log.Info("Relay closed the channel (%d %s)", info.Code, info.Reason)
	} else {
		s.log.Error("Signaling channel lost (%d %s)", info.Code, info.Reason)
	}
	s.endCall(false, "signaling closed")
}

// endCall tears down everything. local reports a user hangup, in which case
// the room is told and the channel is closed by us.
func (s *Session) endCall(local bool, reason string) {
	if s.ended {
		return
	}
	s.ended = true

	if local {
		if err := s.sig.Send(protocol.Hangup("")); err != nil {
			s.log.Warning("hangup notice not sent: %v", err)
		}
	}

	s.cleanAll(reason)

	if local {
		if err := s.sig.Close(hangupCloseCode, hangupCloseReason); err != nil {
			s.log.Warning("close signaling: %v", err)
		}
	}

	s.media.Close()
	s.cancel()

	s.mu.Lock()
	s.phase = phaseEnded
	s.mu.Unlock()

	s.log.Info("Call ended (%s)", reason)
	if s.opts.OnEnded != nil {
		s.opts.OnEnded()
	}
}

// cleanAll tears down every entry and forgets every buffered candidate.
func (s *Session) cleanAll(reason string) {
	for _, id := range s.reg.IDs() {
		s.teardown(id, reason, false)
	}
	s.reg.ClearPending()
}

// expireStalled tears down entries stuck before CONNECTED for longer than
// the negotiation timeout.
func (s *Session) expireStalled(now time.Time) {
	for _, p := range s.reg.Snapshot() {
		if p.State != StateConnecting && p.State != StateNegotiating {
			continue
		}
		if now.Sub(p.Since) < s.opts.NegotiationTimeout {
			continue
		}
		s.logNegotiation(&NegotiationError{Op: p.State.String(), Peer: p.ID, Err: ErrTimeout})
		s.teardown(p.ID, "negotiation timeout", false)
	}
}

type nopView struct{}

func (nopView) AddTile(protocol.ParticipantID)                      {}
func (nopView) RemoveTile(protocol.ParticipantID)                   {}
func (nopView) SetState(protocol.ParticipantID, string)             {}
func (nopView) Attach(protocol.ParticipantID, *webrtc.TrackRemote) {}
