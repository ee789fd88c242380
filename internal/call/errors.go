package call

import (
	"errors"
	"fmt"

	"github.com/1ureka/meshcall/internal/protocol"
)

var (
	ErrNotStarted       = errors.New("local media not acquired")
	ErrAlreadyStarted   = errors.New("session already started")
	ErrInCall           = errors.New("call already in progress")
	ErrNotInCall        = errors.New("no call in progress")
	ErrEnded            = errors.New("session has ended")
	ErrUnknownPeer      = errors.New("no connection for participant")
	ErrUnexpectedAnswer = errors.New("answer without outstanding offer")
	ErrTimeout          = errors.New("negotiation timed out")
)

// NegotiationError is any offer/answer/description/candidate failure for one
// participant. It is logged and never aborts other peers.
type NegotiationError struct {
	Op   string
	Peer protocol.ParticipantID
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s: %s: %v", e.Peer, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
