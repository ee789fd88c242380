package relay

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound frames queued per member before it is considered stuck.
	sendBuffer = 64
)

// member is one WebSocket connection in a room.
type member struct {
	id   protocol.ParticipantID
	room protocol.RoomID
	conn *websocket.Conn
	hub  *Hub
	log  util.Logger

	// send carries encoded envelopes to writePump. The hub closes it after
	// setting closeCode and closeReason.
	send        chan []byte
	closeCode   int
	closeReason string

	// gone is set by the hub once send is closed. Hub goroutine only.
	gone bool
}

func newMember(hub *Hub, conn *websocket.Conn, room protocol.RoomID, requested string) *member {
	return &member{
		id:          protocol.ParticipantID(requested),
		room:        room,
		conn:        conn,
		hub:         hub,
		send:        make(chan []byte, sendBuffer),
		closeCode:   websocket.CloseNormalClosure,
		closeReason: "",
	}
}

// readPump forwards envelopes to the hub, stamped with the sender's ID and
// room. It runs until the connection fails, then unregisters the member.
func (m *member) readPump() {
	defer func() {
		m.hub.leave(m)
		m.conn.Close()
	}()

	m.conn.SetReadLimit(maxMessageSize)
	m.conn.SetReadDeadline(time.Now().Add(pongWait))
	m.conn.SetPongHandler(func(string) error {
		m.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Warning("read: %v", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			m.log.Warning("dropping envelope: %v", err)
			continue
		}
		env.ClientID = m.id
		env.RoomID = m.room

		if !m.hub.route(m, env) {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (m *member) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.conn.Close()
	}()

	for {
		select {
		case data, ok := <-m.send:
			m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				m.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(m.closeCode, m.closeReason))
				return
			}
			if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.log.Debug("write: %v", err)
				return
			}

		case <-ticker.C:
			m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
