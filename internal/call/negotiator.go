package call

import (
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/transport"
	"github.com/1ureka/meshcall/internal/util"
)

// handleEnvelope dispatches one inbound signaling message.
func (s *Session) handleEnvelope(env protocol.Envelope) {
	from := env.ClientID
	if from == "" {
		s.log.Warning("dropping %s without sender", env.Kind())
		return
	}
	// Addressed envelopes carry the ID the relay knows us by.
	if env.To != "" && env.To != s.self {
		s.log.Debug("relay addresses us as %s", env.To)
		s.self = env.To
	}

	switch env.Kind() {
	case protocol.KindJoin:
		s.onJoin(from)
	case protocol.KindOffer:
		s.onOffer(from, *env.Data.Offer)
	case protocol.KindAnswer:
		s.onAnswer(from, *env.Data.Answer)
	case protocol.KindICECandidate:
		s.onRemoteCandidate(from, *env.Data.ICECandidate)
	case protocol.KindHangup:
		s.onHangup(from)
	}
}

// onJoin: from just joined and we are already present, so we offer.
func (s *Session) onJoin(from protocol.ParticipantID) {
	if _, ok := s.reg.Get(from); ok {
		s.log.Info("%s rejoined, replacing its connection", from)
		s.teardown(from, "rejoined", false)
	}
	s.reg.DropPending(from)

	e, err := s.connect(from)
	if err != nil {
		s.logNegotiation(err)
		return
	}
	s.setState(e, StateNegotiating)

	offer, err := e.Conn.CreateOffer()
	if err != nil {
		s.fail(e, "create offer", err)
		return
	}
	if err := e.Conn.SetLocalDescription(offer); err != nil {
		s.fail(e, "set local offer", err)
		return
	}
	e.localSet = true
	e.localOffer = true

	s.send(protocol.Offer(from, offer))
	s.flushOutbox(e)
}

// onOffer: from is negotiating with us, so we answer. Simultaneous offers
// are settled by ID: the smaller ID keeps its offer, the other side drops
// its own connection and answers on a fresh one.
func (s *Session) onOffer(from protocol.ParticipantID, offer webrtc.SessionDescription) {
	e, ok := s.reg.Get(from)
	if ok && e.localOffer {
		if s.self < from {
			s.log.Info("Offer collision with %s, keeping ours", from)
			s.reg.DropPending(from)
			e.collided = true
			return
		}
		s.log.Info("Offer collision with %s, answering theirs", from)
		s.teardown(from, "offer collision", true)
		ok = false
	}

	if !ok {
		var err error
		if e, err = s.connect(from); err != nil {
			s.logNegotiation(err)
			return
		}
	}
	if s.reg.State(e) != StateConnected {
		s.setState(e, StateNegotiating)
	}

	if err := e.Conn.SetRemoteDescription(offer); err != nil {
		s.fail(e, "set remote offer", err)
		return
	}
	e.remoteSet = true
	s.flushPending(e)

	answer, err := e.Conn.CreateAnswer()
	if err != nil {
		s.fail(e, "create answer", err)
		return
	}
	if err := e.Conn.SetLocalDescription(answer); err != nil {
		s.fail(e, "set local answer", err)
		return
	}
	e.localSet = true

	s.send(protocol.Answer(from, answer))
	s.flushOutbox(e)
}

// onAnswer completes an offer we sent. CONNECTED follows from ICE.
func (s *Session) onAnswer(from protocol.ParticipantID, answer webrtc.SessionDescription) {
	e, ok := s.reg.Get(from)
	if !ok {
		s.logNegotiation(&NegotiationError{Op: "apply answer", Peer: from, Err: ErrUnknownPeer})
		return
	}
	if !e.localOffer {
		s.logNegotiation(&NegotiationError{Op: "apply answer", Peer: from, Err: ErrUnexpectedAnswer})
		return
	}

	if err := e.Conn.SetRemoteDescription(answer); err != nil {
		s.fail(e, "set remote answer", err)
		return
	}
	e.localOffer = false
	e.collided = false
	e.remoteSet = true
	s.flushPending(e)
}

// onRemoteCandidate applies c when the remote description is in place and
// queues it otherwise.
func (s *Session) onRemoteCandidate(from protocol.ParticipantID, c webrtc.ICECandidateInit) {
	if e, ok := s.reg.Get(from); ok {
		if e.remoteSet {
			if err := e.Conn.AddICECandidate(c); err != nil {
				s.logNegotiation(&NegotiationError{Op: "add candidate", Peer: from, Err: err})
			}
			return
		}
		if e.collided {
			s.log.Debug("dropping candidate from %s for its abandoned offer", from)
			return
		}
	}
	if !s.reg.Buffer(from, c) {
		s.log.Warning("candidate queue for %s is full, dropping candidate", from)
		return
	}
	s.log.Debug("queued early candidate from %s", from)
}

func (s *Session) onHangup(from protocol.ParticipantID) {
	s.reg.DropPending(from)
	if _, ok := s.reg.Get(from); !ok {
		return
	}
	s.teardown(from, "hung up", false)
}

// ---------------------------------------------------------------------------
// Connection events
// ---------------------------------------------------------------------------

// current returns the entry for id if it is still served by connection gen.
func (s *Session) current(id protocol.ParticipantID, gen uint64) (*Entry, bool) {
	e, ok := s.reg.Get(id)
	if !ok || e.gen != gen {
		return nil, false
	}
	return e, true
}

// handleLocalCandidate forwards a gathered candidate, holding it back until
// the local description has been applied.
func (s *Session) handleLocalCandidate(ev candidateEvent) {
	e, ok := s.current(ev.id, ev.gen)
	if !ok {
		return
	}
	if ev.candidate == nil {
		s.log.Debug("candidate gathering for %s complete", ev.id)
		return
	}
	if !e.localSet {
		e.outbox = append(e.outbox, *ev.candidate)
		return
	}
	s.send(protocol.Candidate(ev.id, *ev.candidate))
}

func (s *Session) handleICEState(ev iceStateEvent) {
	e, ok := s.current(ev.id, ev.gen)
	if !ok {
		return
	}

	switch ev.state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		if s.reg.State(e) != StateConnected {
			s.setState(e, StateConnected)
			util.Stats.AddPeer()
			util.LogSuccess("Connected to %s", ev.id)
		}
	case webrtc.ICEConnectionStateFailed,
		webrtc.ICEConnectionStateDisconnected,
		webrtc.ICEConnectionStateClosed:
		s.teardown(ev.id, "ICE "+ev.state.String(), false)
	}
}

func (s *Session) handleTrack(ev trackEvent) {
	if _, ok := s.current(ev.id, ev.gen); !ok {
		return
	}
	s.deps.View.Attach(ev.id, ev.track)
}

// ---------------------------------------------------------------------------
// Entry lifecycle
// ---------------------------------------------------------------------------

// connect creates the connection for id, bound to it through closures, and
// registers it in CONNECTING.
func (s *Session) connect(id protocol.ParticipantID) (*Entry, error) {
	s.gen++
	gen := s.gen

	h := transport.Handlers{
		OnLocalCandidate: func(c *webrtc.ICECandidateInit) {
			s.post(candidateEvent{id: id, gen: gen, candidate: c})
		},
		OnICEState: func(state webrtc.ICEConnectionState) {
			s.post(iceStateEvent{id: id, gen: gen, state: state})
		},
		OnTrack: func(track *webrtc.TrackRemote) {
			s.post(trackEvent{id: id, gen: gen, track: track})
		},
	}

	conn, err := s.deps.Dial(s.ctx, id, s.media.Tracks(), h)
	if err != nil {
		return nil, &NegotiationError{Op: "create connection", Peer: id, Err: err}
	}

	e := &Entry{ID: id, Conn: conn, gen: gen}
	if err := s.reg.Insert(e); err != nil {
		conn.Close()
		return nil, &NegotiationError{Op: "register", Peer: id, Err: err}
	}

	s.deps.View.AddTile(id)
	s.setState(e, StateConnecting)
	return e, nil
}

// teardown closes one participant's connection and removes its tile and
// entry. Other participants are not affected. keepPending preserves queued
// candidates that belong to the remote side's still-valid connection.
func (s *Session) teardown(id protocol.ParticipantID, reason string, keepPending bool) {
	if !keepPending {
		s.reg.DropPending(id)
	}

	e := s.reg.Remove(id)
	if e == nil {
		return
	}
	wasConnected := s.reg.State(e) == StateConnected
	s.reg.SetState(e, StateClosed)

	if err := e.Conn.Close(); err != nil {
		s.log.Debug("close connection to %s: %v", id, err)
	}
	s.deps.View.RemoveTile(id)

	if wasConnected {
		util.Stats.RemovePeer()
	}
	s.log.Info("Removed %s (%s)", id, reason)
}

// fail logs a negotiation failure and drops the participant's entry.
func (s *Session) fail(e *Entry, op string, err error) {
	s.logNegotiation(&NegotiationError{Op: op, Peer: e.ID, Err: err})
	s.teardown(e.ID, "negotiation failed", false)
}

func (s *Session) setState(e *Entry, st State) {
	s.reg.SetState(e, st)
	s.deps.View.SetState(e.ID, st.String())
}

// flushPending applies candidates that arrived before the remote description.
func (s *Session) flushPending(e *Entry) {
	for _, c := range s.reg.TakePending(e.ID) {
		if err := e.Conn.AddICECandidate(c); err != nil {
			s.logNegotiation(&NegotiationError{Op: "add queued candidate", Peer: e.ID, Err: err})
		}
	}
}

// flushOutbox sends local candidates held back until the local description
// was applied.
func (s *Session) flushOutbox(e *Entry) {
	for _, c := range e.outbox {
		s.send(protocol.Candidate(e.ID, c))
	}
	e.outbox = nil
}

func (s *Session) send(env protocol.Envelope) {
	if err := s.sig.Send(env); err != nil {
		s.log.Warning("send %s to %s: %v", env.Kind(), env.To, err)
	}
}

func (s *Session) logNegotiation(err error) {
	var ne *NegotiationError
	if errors.As(err, &ne) {
		s.log.With("peer", string(ne.Peer)).Error("%s: %v", ne.Op, ne.Err)
		return
	}
	s.log.Error("%v", err)
}
