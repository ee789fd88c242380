// Package signaling is the client side of the relay: one persistent
// WebSocket per call carrying JSON envelopes.
package signaling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

const (
	// Time allowed to write a message to the relay.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the relay.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size. SDP bodies fit comfortably.
	maxMessageSize = 64 * 1024

	// How long Close waits for the relay to echo the close frame.
	closeGrace = time.Second
)

// Handlers receive channel events. Both are called from the read goroutine.
type Handlers struct {
	OnMessage func(protocol.Envelope)
	OnClose   func(CloseInfo)
}

// CloseInfo describes how the channel ended.
type CloseInfo struct {
	Code   int
	Reason string
	Clean  bool
}

// Channel is an open connection to the relay for one room.
type Channel struct {
	room     protocol.RoomID
	conn     *websocket.Conn
	sender   *sender
	handlers Handlers
	log      util.Logger

	closing  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// Open dials the relay, starts the read loop and announces this participant
// with a Join envelope. It does not wait for any acknowledgment.
func Open(ctx context.Context, opts Options, h Handlers) (*Channel, error) {
	endpoint, err := opts.endpoint()
	if err != nil {
		return nil, &Error{Op: "open", Room: opts.RoomID, Err: err}
	}

	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, &Error{Op: "open", Room: opts.RoomID, Err: err}
	}

	c := &Channel{
		room:     opts.RoomID,
		conn:     conn,
		sender:   &sender{conn: conn},
		handlers: h,
		log:      util.With("room", string(opts.RoomID)),
		done:     make(chan struct{}),
	}
	c.log.Info("Connected to relay: %s", endpoint)

	// The read loop starts only once we are announced, so a failed Join
	// never reaches OnClose.
	if err := c.Send(protocol.Join()); err != nil {
		c.closing.Store(true)
		conn.Close()
		return nil, err
	}

	go c.watch()
	go c.keepalive()
	return c, nil
}

// Send encodes and writes one envelope.
func (c *Channel) Send(env protocol.Envelope) error {
	if c.closing.Load() {
		return &Error{Op: "send", Room: c.room, Err: ErrClosed}
	}

	data, err := protocol.Encode(env)
	if err != nil {
		return &Error{Op: "send", Room: c.room, Err: err}
	}
	if err := c.sender.send(data); err != nil {
		return &Error{Op: "send", Room: c.room, Err: err}
	}

	util.Stats.AddSent()
	c.log.Debug("sent %s to %q", env.Kind(), env.To)
	return nil
}

// Close sends a close frame with code and reason, waits briefly for the
// relay's echo and closes the socket. Later calls are no-ops.
func (c *Channel) Close(code int, reason string) error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}

	err := c.sender.close(code, reason)

	select {
	case <-c.done:
	case <-time.After(closeGrace):
	}
	c.conn.Close()

	if err != nil {
		return &Error{Op: "close", Room: c.room, Err: err}
	}
	return nil
}

// Done is closed after the read loop has ended and OnClose has run.
func (c *Channel) Done() <-chan struct{} { return c.done }

func (c *Channel) finish(info CloseInfo) {
	c.doneOnce.Do(func() {
		c.conn.Close()
		if info.Clean {
			c.log.Info("Signaling closed (%d %s)", info.Code, info.Reason)
		} else {
			c.log.Warning("Signaling lost (%d %s)", info.Code, info.Reason)
		}
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(info)
		}
		close(c.done)
	})
}
