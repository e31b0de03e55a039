package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20 // 1MB
	sendBuffer     = 256
)

// Client is one participant's live connection. It satisfies registry.Sender;
// Send never blocks, a full buffer drops the frame.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	userID   string
	roomCode string
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan []byte, sendBuffer)}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) Send(evt models.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", evt.Type).Msg("marshal outbound event")
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("user", c.userID).Msg("send buffer full, frame dropped")
	}
}

func (c *Client) sendError(msg string) {
	evt, _ := models.NewEvent(models.EventError, models.ErrorPayload{Message: msg})
	c.Send(evt)
}

func (c *Client) readPump(h *Handler) {
	defer func() {
		h.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("user", c.userID).Msg("websocket read")
			}
			return
		}

		var evt models.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			log.Debug().Err(err).Msg("unparseable frame, skipped")
			continue
		}
		h.dispatch(c, evt)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
