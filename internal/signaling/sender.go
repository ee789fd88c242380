package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sender serializes outgoing frames to the WebSocket. gorilla allows only one
// concurrent writer for data frames; control frames go through WriteControl,
// which is safe alongside them.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes one text frame under the write deadline.
func (s *sender) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *sender) ping() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *sender) close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
