package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte

	userID   string
	username string
	connID   string

	// workspace memberships at connect time, for presence broadcasts.
	workspaces []string

	// dropped is owned by the hub goroutine.
	dropped bool

	// sendMu guards send against a close racing an enqueue from the
	// read pump or a relay goroutine.
	sendMu     sync.Mutex
	sendClosed bool

	// subscriptions the client holds, guarded separately because the
	// read pump consults it outside the hub goroutine.
	mu    sync.Mutex
	rooms map[string]bool
}

// enqueue queues a frame unless the channel is closed or full. The
// boolean reports acceptance; a false from a full buffer marks a slow
// consumer.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. All sends go through
// enqueue, so no goroutine can be mid-send when the close happens.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Client) trackRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

func (c *Client) untrackRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (c *Client) inRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[room]
}

// readPump pumps frames from the websocket connection to the gateway.
func (c *Client) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.log.Debug().Err(err).Str("user_id", c.userID).Msg("websocket read error")
			}
			break
		}
		c.gateway.dispatch(c, raw)
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent queues a frame for this client only. Full buffer drops the
// frame; the hub handles slow-consumer disconnects on broadcasts.
func (c *Client) sendEvent(event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		return
	}
	c.enqueue(payload)
}

func (c *Client) sendError(msg string) {
	c.sendEvent(EventError, ErrorEvent{Message: msg})
}
