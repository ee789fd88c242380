package call

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/signaling"
	"github.com/1ureka/meshcall/internal/transport"
)

// PeerConn is the subset of a peer connection the negotiator drives.
// *transport.Transport implements it.
type PeerConn interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

// Dialer creates a connection for id with the local tracks attached and h
// registered.
type Dialer func(ctx context.Context, id protocol.ParticipantID, tracks []webrtc.TrackLocal, h transport.Handlers) (PeerConn, error)

// Signaler is the open signaling channel. *signaling.Channel implements it.
type Signaler interface {
	Send(protocol.Envelope) error
	Close(code int, reason string) error
}

// Connector opens the signaling channel, which announces this participant.
type Connector func(ctx context.Context, h signaling.Handlers) (Signaler, error)

// LocalMedia is the acquired capture session. *media.Stream implements it.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
	Close()
}

// View presents one tile per remote participant. *ui.Grid implements it.
type View interface {
	AddTile(id protocol.ParticipantID)
	RemoveTile(id protocol.ParticipantID)
	SetState(id protocol.ParticipantID, state string)
	Attach(id protocol.ParticipantID, track *webrtc.TrackRemote)
}

// Compile-time interface checks.
var (
	_ PeerConn = (*transport.Transport)(nil)
	_ Signaler = (*signaling.Channel)(nil)
)
