package signaling

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/meshcall/internal/protocol"
	"github.com/1ureka/meshcall/internal/util"
)

// watch is the single read loop. Envelopes are delivered to OnMessage in
// arrival order; malformed ones are logged and skipped. It returns once the
// connection ends and reports how.
func (c *Channel) watch() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(c.closeInfo(err))
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.log.Warning("dropping envelope: %v", err)
			continue
		}

		util.Stats.AddRecv()
		c.log.Debug("recv %s from %s", env.Kind(), env.ClientID)
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(env)
		}
	}
}

// keepalive pings the relay until the channel is done.
func (c *Channel) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.sender.ping(); err != nil {
				c.log.Debug("ping failed: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// closeInfo classifies the error that ended the read loop. A close is clean
// when it was initiated locally or the relay sent a normal closure.
func (c *Channel) closeInfo(err error) CloseInfo {
	local := c.closing.Load()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseInfo{
			Code:   ce.Code,
			Reason: ce.Text,
			Clean:  local || ce.Code == websocket.CloseNormalClosure,
		}
	}
	return CloseInfo{
		Code:   websocket.CloseAbnormalClosure,
		Reason: err.Error(),
		Clean:  local,
	}
}
