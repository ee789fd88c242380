// Package transport wraps pion PeerConnections for one remote participant
// each.
package transport

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

// Handlers receive connection events. Every callback is invoked from a pion
// goroutine and is already bound to the participant the connection serves.
type Handlers struct {
	// OnLocalCandidate receives each gathered local candidate; nil marks
	// the end of gathering.
	OnLocalCandidate func(*webrtc.ICECandidateInit)
	OnICEState       func(webrtc.ICEConnectionState)
	OnTrack          func(*webrtc.TrackRemote)
}

// Transport is one PeerConnection to one remote participant. The local
// tracks are attached at construction; the caller drives offer/answer and
// candidate exchange through the exposed methods.
type Transport struct {
	id protocol.ParticipantID
	pc *webrtc.PeerConnection

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	iceState webrtc.ICEConnectionState
}

// NewTransport creates a PeerConnection for id, adds one sender per local
// track and registers h. Its lifetime ends at Close or when ctx is cancelled.
func (a *API) NewTransport(ctx context.Context, id protocol.ParticipantID, tracks []webrtc.TrackLocal, h Handlers) (*Transport, error) {
	pc, err := a.api.NewPeerConnection(a.config)
	if err != nil {
		return nil, newError("create peer connection", id, err)
	}

	tCtx, tCancel := context.WithCancel(ctx)
	t := &Transport{
		id:       id,
		pc:       pc,
		cancel:   tCancel,
		iceState: webrtc.ICEConnectionStateNew,
	}
	log := util.With("peer", string(id))

	for _, track := range tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			tCancel()
			pc.Close()
			return nil, newError("add "+track.Kind().String()+" track", id, err)
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			drainRTCP(tCtx, sender, log)
		}()
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if h.OnLocalCandidate == nil {
			return
		}
		if c == nil {
			h.OnLocalCandidate(nil)
			return
		}
		init := c.ToJSON()
		h.OnLocalCandidate(&init)
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug("ICE state: %s", state)
		t.mu.Lock()
		t.iceState = state
		t.mu.Unlock()
		if h.OnICEState != nil {
			h.OnICEState(state)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info("Remote %s track (%s)", track.Kind(), track.Codec().MimeType)
		if h.OnTrack != nil {
			h.OnTrack(track)
		}
	})

	// Parent context cancelled → release the connection.
	go func() {
		<-tCtx.Done()
		pc.Close()
	}()

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// ID returns the participant this connection is bound to.
func (t *Transport) ID() protocol.ParticipantID { return t.id }

// Close shuts down the PeerConnection and waits for the RTCP readers.
func (t *Transport) Close() error {
	t.cancel()
	err := t.pc.Close()
	t.wg.Wait()
	return err
}

// ICEState returns the last observed ICE connection state.
func (t *Transport) ICEState() webrtc.ICEConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.iceState
}

// SignalingState reports the offer/answer state of the connection.
func (t *Transport) SignalingState() webrtc.SignalingState {
	return t.pc.SignalingState()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}
