// Package protocol defines the signaling envelope exchanged between call
// participants and the relay.
package protocol

import "github.com/pion/webrtc/v4"

// ParticipantID identifies one connected client within a room. It is assigned
// by the relay and unique for the lifetime of that client's connection.
type ParticipantID string

// RoomID scopes which participants see each other's envelopes.
type RoomID string

// Kind names the single payload carried by an envelope.
type Kind string

// Envelope kinds. The string values match the JSON keys of Payload.
const (
	KindUnknown      Kind = ""
	KindJoin         Kind = "join"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "iceCandidate"
	KindHangup       Kind = "hangup"
)

// Payload carries exactly one of the signaling messages.
type Payload struct {
	Join         bool                       `json:"join,omitempty"`
	Offer        *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer       *webrtc.SessionDescription `json:"answer,omitempty"`
	ICECandidate *webrtc.ICECandidateInit   `json:"iceCandidate,omitempty"`
	Hangup       bool                       `json:"hangup,omitempty"`
}

// Envelope is the JSON structure exchanged over the WebSocket.
//
// To is empty for room-wide broadcasts. ClientID and RoomID are stamped by the
// relay on every envelope it forwards; clients leave them empty.
type Envelope struct {
	To       ParticipantID `json:"To,omitempty"`
	ClientID ParticipantID `json:"ClientID,omitempty"`
	RoomID   RoomID        `json:"RoomID,omitempty"`
	Data     Payload       `json:"Data"`
}

// Kind returns the kind of the single payload set on e, or KindUnknown when
// zero or several payloads are set.
func (e Envelope) Kind() Kind {
	kind := KindUnknown
	n := 0
	if e.Data.Join {
		kind, n = KindJoin, n+1
	}
	if e.Data.Offer != nil {
		kind, n = KindOffer, n+1
	}
	if e.Data.Answer != nil {
		kind, n = KindAnswer, n+1
	}
	if e.Data.ICECandidate != nil {
		kind, n = KindICECandidate, n+1
	}
	if e.Data.Hangup {
		kind, n = KindHangup, n+1
	}
	if n != 1 {
		return KindUnknown
	}
	return kind
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Join announces the sender's presence to the room.
func Join() Envelope {
	return Envelope{Data: Payload{Join: true}}
}

// Offer addresses an SDP offer to participant to.
func Offer(to ParticipantID, sd webrtc.SessionDescription) Envelope {
	return Envelope{To: to, Data: Payload{Offer: &sd}}
}

// Answer addresses an SDP answer to participant to.
func Answer(to ParticipantID, sd webrtc.SessionDescription) Envelope {
	return Envelope{To: to, Data: Payload{Answer: &sd}}
}

// Candidate addresses a trickled ICE candidate to participant to.
func Candidate(to ParticipantID, c webrtc.ICECandidateInit) Envelope {
	return Envelope{To: to, Data: Payload{ICECandidate: &c}}
}

// Hangup tells the room (or a single participant, when to is set) that the
// sender is leaving the call.
func Hangup(to ParticipantID) Envelope {
	return Envelope{To: to, Data: Payload{Hangup: true}}
}
