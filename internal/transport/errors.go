package transport

import (
	"fmt"

	"github.com/1ureka/meshcall/internal/protocol"
)

// Error is a peer connection failure tagged with the operation and peer.
type Error struct {
	Op   string
	Peer protocol.ParticipantID
	Err  error
}

func newError(op string, peer protocol.ParticipantID, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func (e *Error) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s (peer %s): %v", e.Op, e.Peer, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
