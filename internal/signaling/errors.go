package signaling

import (
	"errors"
	"fmt"

	"github.com/1ureka/meshcall/internal/protocol"
)

// ErrClosed is returned by Send once the channel has been closed.
var ErrClosed = errors.New("signaling channel closed")

// Error is a signaling channel failure. It is logged by the caller and
// never retried.
type Error struct {
	Op   string
	Room protocol.RoomID
	Err  error
}

func (e *Error) Error() string {
	if e.Room == "" {
		return fmt.Sprintf("signaling: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("signaling: %s (room %s): %v", e.Op, e.Room, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
