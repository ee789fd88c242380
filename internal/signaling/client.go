package signaling

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/1ureka/meshcall/internal/config"
	"github.com/1ureka/meshcall/internal/protocol"
)

// Options identify the relay and the room to join.
type Options struct {
	ServerURL string // ws(s)://host[:port]; http(s) and bare hosts are accepted
	RoomID    protocol.RoomID
	Username  string
}

// endpoint returns the relay URL with the room and username query, e.g.
// ws://localhost:8080/ws?roomid=42&username=alice.
func (o Options) endpoint() (string, error) {
	base, err := config.NormalizeServerURL(o.ServerURL)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("roomid", string(o.RoomID))
	q.Set("username", o.Username)
	return base + "?" + q.Encode(), nil
}

// dial opens the WebSocket connection to the relay.
func dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return conn, nil
}
