// Package client implements the participant side of a watch-together room:
// the socket session, the room event surface and one peer negotiator per
// remote participant. It carries negotiation only; media flows over the
// established links outside this package.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/models"
)

// Callbacks surface room events to the embedding application. All fields are
// optional and must be set before Join.
type Callbacks struct {
	OnSync          func(models.RoomSyncPayload)
	OnUserJoined    func(models.UserJoinedPayload)
	OnUserLeft      func(models.UserLeftPayload)
	OnChatMessage   func(models.ChatMessage)
	OnChatReaction  func(models.ChatReactionPayload)
	OnStreamStarted func(models.StreamStartedPayload)
	OnStreamStopped func()
	OnStreamAction  func(models.StreamAction)
	OnRoomClosed    func(models.RoomClosedPayload)
	// OnPeerFailed fires when a peer link's retry budget is spent. The UI
	// shows a persistent reconnecting indicator rather than a hard error.
	OnPeerFailed func(remoteID string)
	OnStatus     func(connected bool)
}

// RoomClient is one participant's view of a room.
type RoomClient struct {
	sock    *Socket
	factory LinkFactory
	cb      Callbacks

	mu        sync.Mutex
	self      models.User
	roomID    string
	hostID    string
	streaming bool // host side: we are live; viewer side: the host is live
	peers     map[string]*Negotiator
}

func NewRoomClient(sock *Socket, factory LinkFactory, cb Callbacks) *RoomClient {
	rc := &RoomClient{
		sock:    sock,
		factory: factory,
		cb:      cb,
		peers:   make(map[string]*Negotiator),
	}
	rc.bind()
	return rc
}

// Join enters a room as user. The server answers with room:sync once the
// join is applied.
func (rc *RoomClient) Join(roomID string, user models.User) error {
	rc.mu.Lock()
	rc.self = user
	rc.roomID = roomID
	rc.mu.Unlock()
	return rc.sock.Join(roomID, user)
}

// Leave exits the room and synchronously tears down every peer link; no
// retries fire afterwards.
func (rc *RoomClient) Leave() error {
	rc.teardownPeers()
	return rc.sock.Leave()
}

// Close ends the session entirely.
func (rc *RoomClient) Close() error {
	rc.teardownPeers()
	return rc.sock.Close()
}

// StartStream transitions the room live (host only; the server ignores
// anyone else) and invites every current viewer to request a connection.
func (rc *RoomClient) StartStream() error {
	rc.mu.Lock()
	rc.streaming = true
	sender := rc.self.ID
	rc.mu.Unlock()

	if err := rc.sock.Emit(models.EventStreamStart, nil); err != nil {
		return err
	}
	// Broadcast readiness; viewers answer with targeted join requests.
	return rc.sock.Emit(models.EventSignal, models.SignalEnvelope{
		Type:   models.SignalTypeHostReady,
		Sender: sender,
	})
}

// StopStream ends the broadcast and closes all peer links.
func (rc *RoomClient) StopStream() error {
	rc.mu.Lock()
	rc.streaming = false
	rc.mu.Unlock()
	rc.teardownPeers()
	return rc.sock.Emit(models.EventStreamStop, nil)
}

// PlaybackAction broadcasts a host play/pause hint.
func (rc *RoomClient) PlaybackAction(actionType string) error {
	return rc.sock.Emit(models.EventStreamAction, models.StreamAction{
		Type:      actionType,
		Timestamp: time.Now().UnixMilli(),
	})
}

// SendMessage appends a chat message to the room. The sender sees its own
// message come back through the broadcast, in final ordering position.
func (rc *RoomClient) SendMessage(text string, msgType models.MessageType, replyTo *models.ChatMessage) error {
	rc.mu.Lock()
	self := rc.self
	rc.mu.Unlock()

	msg := models.ChatMessage{
		ID:         uuid.New().String(),
		UserID:     self.ID,
		UserName:   self.Name,
		UserAvatar: self.Avatar,
		UserColor:  self.Color,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
		Type:       msgType,
	}
	if replyTo != nil {
		text := replyTo.Text
		if replyTo.Type == models.MessageTypeGif {
			text = "GIF"
		}
		msg.ReplyTo = &models.ReplyRef{ID: replyTo.ID, UserName: replyTo.UserName, Text: text}
	}
	return rc.sock.Emit(models.EventChatMessage, msg)
}

// React toggles our emoji vote on a message.
func (rc *RoomClient) React(msgID, emoji string) error {
	rc.mu.Lock()
	userID := rc.self.ID
	rc.mu.Unlock()
	return rc.sock.Emit(models.EventChatReaction, models.ChatReactionPayload{
		MsgID: msgID, Emoji: emoji, UserID: userID,
	})
}

// CloseRoom closes the room for everyone (host action).
func (rc *RoomClient) CloseRoom() error {
	rc.teardownPeers()
	return rc.sock.Emit(models.EventCloseRoom, nil)
}

func (rc *RoomClient) bind() {
	rc.sock.OnStatus(func(connected bool) {
		if !connected {
			// Links negotiated through a dead channel cannot recover their
			// signaling; they are rebuilt after the rejoin.
			rc.teardownPeers()
		}
		if rc.cb.OnStatus != nil {
			rc.cb.OnStatus(connected)
		}
	})

	rc.sock.On(models.EventRoomSync, func(raw json.RawMessage) {
		var p models.RoomSyncPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		rc.mu.Lock()
		rc.hostID = p.HostID
		if rc.self.Role != models.RoleHost {
			rc.streaming = p.Streaming
		}
		rc.mu.Unlock()
		if rc.cb.OnSync != nil {
			rc.cb.OnSync(p)
		}
	})

	rc.sock.On(models.EventUserJoined, func(raw json.RawMessage) {
		var p models.UserJoinedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		rc.mu.Lock()
		isHost := rc.self.Role == models.RoleHost
		live := rc.streaming
		sender := rc.self.ID
		selfJoin := p.UserID == sender
		rc.mu.Unlock()

		// A live host invites the late joiner directly.
		if isHost && live && !selfJoin {
			_ = rc.sock.Emit(models.EventSignal, models.SignalEnvelope{
				Type:   models.SignalTypeHostReady,
				Sender: sender,
				Target: p.UserID,
			})
		}
		if rc.cb.OnUserJoined != nil {
			rc.cb.OnUserJoined(p)
		}
	})

	rc.sock.On(models.EventUserLeft, func(raw json.RawMessage) {
		var p models.UserLeftPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		rc.dropPeer(p.UserID)
		if rc.cb.OnUserLeft != nil {
			rc.cb.OnUserLeft(p)
		}
	})

	rc.sock.On(models.EventChatMessage, func(raw json.RawMessage) {
		var msg models.ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		if rc.cb.OnChatMessage != nil {
			rc.cb.OnChatMessage(msg)
		}
	})

	rc.sock.On(models.EventChatReaction, func(raw json.RawMessage) {
		var p models.ChatReactionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		if rc.cb.OnChatReaction != nil {
			rc.cb.OnChatReaction(p)
		}
	})

	rc.sock.On(models.EventStreamStarted, func(raw json.RawMessage) {
		var p models.StreamStartedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return
		}
		rc.mu.Lock()
		rc.hostID = p.HostID
		if rc.self.Role != models.RoleHost {
			rc.streaming = true
		}
		rc.mu.Unlock()
		if rc.cb.OnStreamStarted != nil {
			rc.cb.OnStreamStarted(p)
		}
	})

	rc.sock.On(models.EventStreamStopped, func(json.RawMessage) {
		rc.mu.Lock()
		if rc.self.Role != models.RoleHost {
			rc.streaming = false
		}
		rc.mu.Unlock()
		rc.teardownPeers()
		if rc.cb.OnStreamStopped != nil {
			rc.cb.OnStreamStopped()
		}
	})

	rc.sock.On(models.EventStreamAction, func(raw json.RawMessage) {
		var a models.StreamAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return
		}
		if rc.cb.OnStreamAction != nil {
			rc.cb.OnStreamAction(a)
		}
	})

	rc.sock.On(models.EventRoomClosed, func(raw json.RawMessage) {
		var p models.RoomClosedPayload
		_ = json.Unmarshal(raw, &p)
		rc.teardownPeers()
		if rc.cb.OnRoomClosed != nil {
			rc.cb.OnRoomClosed(p)
		}
	})

	rc.sock.On(models.EventSignal, rc.handleSignal)
}

// handleSignal advances the handshake with one remote peer. Failures stay
// contained to that peer's negotiator and never abort sibling links.
func (rc *RoomClient) handleSignal(raw json.RawMessage) {
	var env models.SignalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	rc.mu.Lock()
	self := rc.self
	live := rc.streaming
	rc.mu.Unlock()

	if env.Target != "" && env.Target != self.ID {
		return
	}

	var err error
	switch env.Type {
	case models.SignalTypeHostReady:
		// Pull model: the viewer asks, the host answers with an offer.
		if self.Role != models.RoleHost {
			err = rc.sock.Emit(models.EventSignal, models.SignalEnvelope{
				Type:   models.SignalTypeJoinRequest,
				Sender: self.ID,
				Target: env.Sender,
			})
		}

	case models.SignalTypeJoinRequest:
		if self.Role == models.RoleHost && live {
			err = rc.negotiator(env.Sender).Offer()
		}

	case models.SignalTypeOffer:
		err = rc.negotiator(env.Sender).HandleOffer(env.Data)

	case models.SignalTypeAnswer:
		if n := rc.peer(env.Sender); n != nil {
			err = n.HandleAnswer(env.Data)
		}

	case models.SignalTypeCandidate:
		err = rc.negotiator(env.Sender).HandleCandidate(env.Data)
	}

	if err != nil {
		log.Warn().Err(err).Str("peer", env.Sender).Str("type", string(env.Type)).Msg("signal handling")
	}
}

func (rc *RoomClient) peer(remoteID string) *Negotiator {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.peers[remoteID]
}

func (rc *RoomClient) negotiator(remoteID string) *Negotiator {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if n, ok := rc.peers[remoteID]; ok {
		return n
	}
	n := NewNegotiator(NegotiatorConfig{
		LocalID:  rc.self.ID,
		RemoteID: remoteID,
		Factory:  rc.factory,
		Signal: func(env models.SignalEnvelope) error {
			return rc.sock.Emit(models.EventSignal, env)
		},
		Restart:   rc.restartPeer,
		OnFailure: rc.peerFailed,
	})
	rc.peers[remoteID] = n
	return n
}

// restartPeer re-runs the handshake after a failed link: the host offers
// again, a viewer asks the host to.
func (rc *RoomClient) restartPeer(n *Negotiator) {
	rc.mu.Lock()
	self := rc.self
	live := rc.streaming
	rc.mu.Unlock()

	if self.Role == models.RoleHost {
		if !live {
			return
		}
		if err := n.Offer(); err != nil {
			log.Warn().Err(err).Str("peer", n.RemoteID()).Msg("renegotiation offer")
		}
		return
	}
	_ = rc.sock.Emit(models.EventSignal, models.SignalEnvelope{
		Type:   models.SignalTypeJoinRequest,
		Sender: self.ID,
		Target: n.RemoteID(),
	})
}

func (rc *RoomClient) peerFailed(remoteID string) {
	rc.dropPeer(remoteID)
	if rc.cb.OnPeerFailed != nil {
		rc.cb.OnPeerFailed(remoteID)
	}
}

func (rc *RoomClient) dropPeer(remoteID string) {
	rc.mu.Lock()
	n := rc.peers[remoteID]
	delete(rc.peers, remoteID)
	rc.mu.Unlock()
	if n != nil {
		n.Close()
	}
}

func (rc *RoomClient) teardownPeers() {
	rc.mu.Lock()
	peers := rc.peers
	rc.peers = make(map[string]*Negotiator)
	rc.mu.Unlock()
	for _, n := range peers {
		n.Close()
	}
}
