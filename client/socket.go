package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/models"
)

const (
	socketWriteWait       = 10 * time.Second
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
	reconnectMaxAttempts  = 5
)

// EventHandler receives the payload of one incoming event
type EventHandler func(payload json.RawMessage)

// Socket is the client end of the real-time channel. It reconnects with
// capped exponential backoff when the connection drops and re-issues the
// join afterwards, since the server keeps no session beyond the live
// connection.
type Socket struct {
	url string

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string][]EventHandler
	statusFn func(connected bool)
	lastJoin *models.JoinRoomPayload
	closed   bool
}

// DialSocket connects to the server's websocket endpoint.
func DialSocket(url string) (*Socket, error) {
	s := &Socket{
		url:      url,
		handlers: make(map[string][]EventHandler),
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	s.conn = conn
	go s.readLoop(conn)
	return s, nil
}

// On registers a handler for an event type. Registration is not safe to
// interleave with delivery for the same type; register before joining.
func (s *Socket) On(eventType string, fn EventHandler) {
	s.mu.Lock()
	s.handlers[eventType] = append(s.handlers[eventType], fn)
	s.mu.Unlock()
}

// OnStatus registers the connectivity callback, fired on drop and on
// successful reconnect.
func (s *Socket) OnStatus(fn func(connected bool)) {
	s.mu.Lock()
	s.statusFn = fn
	s.mu.Unlock()
}

// Emit sends one event frame to the server.
func (s *Socket) Emit(eventType string, payload interface{}) error {
	evt, err := models.NewEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("emit %s: not connected", eventType)
	}
	s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteJSON(evt)
}

// Join issues the join request and remembers it for replay after reconnect.
func (s *Socket) Join(roomID string, user models.User) error {
	p := models.JoinRoomPayload{RoomID: roomID, User: user}
	s.mu.Lock()
	s.lastJoin = &p
	s.mu.Unlock()
	return s.Emit(models.EventJoinRoom, p)
}

// Leave tells the server we are leaving the room but keeps the connection.
func (s *Socket) Leave() error {
	s.mu.Lock()
	s.lastJoin = nil
	s.mu.Unlock()
	return s.Emit(models.EventLeaveRoom, nil)
}

// Close shuts the connection down for good; no reconnect is attempted.
func (s *Socket) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		var evt models.Event
		if err := conn.ReadJSON(&evt); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			log.Warn().Err(err).Msg("socket dropped")
			s.notifyStatus(false)
			s.reconnect()
			return
		}
		s.deliver(evt)
	}
}

func (s *Socket) deliver(evt models.Event) {
	s.mu.Lock()
	fns := append([]EventHandler(nil), s.handlers[evt.Type]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(evt.Payload)
	}
}

func (s *Socket) notifyStatus(connected bool) {
	s.mu.Lock()
	fn := s.statusFn
	s.mu.Unlock()
	if fn != nil {
		fn(connected)
	}
}

// reconnect re-dials with backoff, then replays the join so the server
// re-synchronizes us via room:sync.
func (s *Socket) reconnect() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitialDelay
	b.MaxInterval = reconnectMaxDelay
	b.MaxElapsedTime = 0

	dial := func() error {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return backoff.Permanent(fmt.Errorf("socket closed"))
		}
		s.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		go s.readLoop(conn)
		return nil
	}

	if err := backoff.Retry(dial, backoff.WithMaxRetries(b, reconnectMaxAttempts)); err != nil {
		log.Error().Err(err).Msg("reconnect attempts exhausted")
		return
	}

	s.notifyStatus(true)

	s.mu.Lock()
	join := s.lastJoin
	s.mu.Unlock()
	if join != nil {
		if err := s.Emit(models.EventJoinRoom, *join); err != nil {
			log.Error().Err(err).Msg("rejoin after reconnect")
		}
	}
}
