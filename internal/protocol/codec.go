package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ErrMalformed is returned by Decode and Validate for envelopes that do not
// carry exactly one well-formed payload.
var ErrMalformed = errors.New("malformed envelope")

// Validate checks that e carries exactly one payload and that SDP payloads
// have the type matching their field.
func Validate(e Envelope) error {
	switch e.Kind() {
	case KindUnknown:
		return fmt.Errorf("%w: expected exactly one payload", ErrMalformed)
	case KindOffer:
		if e.Data.Offer.Type != webrtc.SDPTypeOffer || e.Data.Offer.SDP == "" {
			return fmt.Errorf("%w: offer has type %q", ErrMalformed, e.Data.Offer.Type)
		}
	case KindAnswer:
		if e.Data.Answer.Type != webrtc.SDPTypeAnswer || e.Data.Answer.SDP == "" {
			return fmt.Errorf("%w: answer has type %q", ErrMalformed, e.Data.Answer.Type)
		}
	case KindICECandidate:
		if e.Data.ICECandidate.Candidate == "" {
			return fmt.Errorf("%w: empty ICE candidate", ErrMalformed)
		}
	}
	return nil
}

// Encode validates and serializes an envelope for WebSocket transmission.
func Encode(e Envelope) ([]byte, error) {
	if err := Validate(e); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode deserializes and validates an envelope read from the WebSocket.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := Validate(e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
