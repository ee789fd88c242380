package call

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/signaling"
)

// event is processed by the session loop, one at a time in arrival order.
type event interface{}

// Channel events carry the connect attempt that opened the channel. Events
// from an attempt that failed are ignored.
type envelopeEvent struct {
	attempt uint64
	env     protocol.Envelope
}

type closeEvent struct {
	attempt uint64
	info    signaling.CloseInfo
}

// Connection events carry the generation of the connection that raised them.
type candidateEvent struct {
	id        protocol.ParticipantID
	gen       uint64
	candidate *webrtc.ICECandidateInit
}

type iceStateEvent struct {
	id    protocol.ParticipantID
	gen   uint64
	state webrtc.ICEConnectionState
}

type trackEvent struct {
	id    protocol.ParticipantID
	gen   uint64
	track *webrtc.TrackRemote
}

// commandEvent runs fn on the loop.
type commandEvent struct {
	fn func()
}
