// Package ws carries the real-time channel: one persistent websocket per
// participant, the event dispatch for everything a client may ask of a room,
// and the hand-off of signal envelopes into the registry's relay.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/metrics"
	"github.com/Mitahi-1810/stream-mates/internal/models"
	"github.com/Mitahi-1810/stream-mates/internal/registry"
	"github.com/Mitahi-1810/stream-mates/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

const storeTimeout = 5 * time.Second

// Handler upgrades connections and routes their events. The registry holds
// the live room state; the store answers whether a room may be joined and
// mirrors membership for TTL cleanup.
type Handler struct {
	reg *registry.Registry
	st  store.RoomStore
}

func NewHandler(reg *registry.Registry, st store.RoomStore) *Handler {
	return &Handler{reg: reg, st: st}
}

// Serve is the GET /ws endpoint. Joining happens through the join_room
// event after the upgrade, not through the URL.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn)
	metrics.WsConnections.Inc()

	go client.writePump()
	go client.readPump(h)
}

func (h *Handler) dispatch(c *Client, evt models.Event) {
	switch evt.Type {
	case models.EventJoinRoom:
		var p models.JoinRoomPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.RoomID == "" || p.User.ID == "" {
			c.sendError("invalid join_room payload")
			return
		}
		h.join(c, p)

	case models.EventLeaveRoom:
		h.leave(c)

	case models.EventChatMessage:
		if c.roomCode == "" {
			return
		}
		var msg models.ChatMessage
		if err := json.Unmarshal(evt.Payload, &msg); err != nil || msg.ID == "" {
			return
		}
		metrics.ChatMessagesTotal.Inc()
		h.reg.Chat(c.roomCode, msg)

	case models.EventChatReaction:
		if c.roomCode == "" {
			return
		}
		var p models.ChatReactionPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		h.reg.Reaction(c.roomCode, p)

	case models.EventStreamStart:
		if c.roomCode != "" {
			h.reg.StartStream(c.roomCode, c.userID)
		}

	case models.EventStreamStop:
		if c.roomCode != "" {
			h.reg.StopStream(c.roomCode, c.userID)
		}

	case models.EventStreamAction:
		if c.roomCode == "" {
			return
		}
		var action models.StreamAction
		if err := json.Unmarshal(evt.Payload, &action); err != nil {
			return
		}
		h.reg.StreamAction(c.roomCode, c.userID, action)

	case models.EventSignal:
		if c.roomCode == "" {
			return
		}
		var env models.SignalEnvelope
		if err := json.Unmarshal(evt.Payload, &env); err != nil {
			return
		}
		// The server, not the client, decides who a signal is from.
		env.Sender = c.userID
		metrics.SignalsRelayedTotal.Inc()
		h.reg.Relay(c.roomCode, env)

	case models.EventRoomRefresh:
		if c.roomCode != "" {
			h.reg.Sync(c.roomCode, c.userID)
		}

	case models.EventCloseRoom:
		h.closeRoom(c)

	default:
		log.Debug().Str("event", evt.Type).Msg("unknown event type")
	}
}

// join validates the room against the store, mirrors membership into it and
// registers the connection with the live registry. Closed rooms are rejected
// distinctly from unknown ones.
func (h *Handler) join(c *Client, p models.JoinRoomPayload) {
	// Switching rooms without an explicit leave_room still detaches the
	// connection from the old room, so its membership never lingers there.
	if c.roomCode != "" && c.roomCode != p.RoomID {
		h.leave(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if _, err := h.st.AddUser(ctx, p.RoomID, p.User); err != nil {
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			c.sendError("room not found")
		case errors.Is(err, store.ErrRoomClosed):
			c.sendError("room has been closed")
		default:
			log.Error().Err(err).Str("room", p.RoomID).Msg("persist join")
			c.sendError("failed to join room")
		}
		return
	}

	c.userID = p.User.ID
	c.roomCode = p.RoomID
	h.reg.Join(p.RoomID, p.User, c)
}

func (h *Handler) leave(c *Client) {
	if c.roomCode == "" {
		return
	}
	code, userID := c.roomCode, c.userID
	c.roomCode = ""

	h.reg.Leave(code, userID)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.st.RemoveUser(ctx, code, userID); err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		log.Error().Err(err).Str("room", code).Msg("persist leave")
	}
}

func (h *Handler) closeRoom(c *Client) {
	if c.roomCode == "" {
		return
	}
	code := c.roomCode
	c.roomCode = ""

	h.reg.CloseRoom(code, "closed by host")

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.st.CloseRoom(ctx, code); err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		log.Error().Err(err).Str("room", code).Msg("persist close")
	}
}

// disconnect runs when the read loop exits for any reason. A plain drop is
// treated as a leave; it never marks the room closed.
func (h *Handler) disconnect(c *Client) {
	metrics.WsConnections.Dec()
	h.leave(c)
}
