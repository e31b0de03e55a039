package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/models"
)

type member struct {
	user models.User
	conn Sender
}

// Room is the live state of one active room. All mutations run under mu, so
// for a given room every membership, chat, stream and signal operation is
// applied one at a time in arrival order, and every member observes the
// resulting notifications in that same relative order. Rooms share nothing,
// so operations on different rooms proceed independently.
type Room struct {
	code string

	mu       sync.Mutex
	hostID   string
	members  map[string]*member
	order    []string // member ids in join order, for snapshots
	video    models.VideoState
	messages []models.ChatMessage
}

func newRoom(code string) *Room {
	return &Room{
		code:    code,
		members: make(map[string]*member),
		video:   models.VideoState{SourceType: models.SourceIdle},
	}
}

func (rm *Room) join(user models.User, conn Sender) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.members[user.ID]; !exists {
		rm.order = append(rm.order, user.ID)
	}
	rm.members[user.ID] = &member{user: user, conn: conn}

	// Host slot is claimed by whoever joins with the HOST role, last writer
	// wins. No handoff happens when a host disconnects.
	if user.Role == models.RoleHost {
		rm.hostID = user.ID
	}

	rm.broadcastLocked(models.EventUserJoined, models.UserJoinedPayload{
		UserID:     user.ID,
		TotalUsers: len(rm.members),
	}, "")

	// Snapshot goes to the joiner only, after the join is applied, never
	// before. This is the late-joiner reconciliation path.
	conn.Send(rm.syncEventLocked())
}

// leave reports whether the room emptied out.
func (rm *Room) leave(userID string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.members[userID]; !ok {
		return len(rm.members) == 0
	}
	delete(rm.members, userID)
	for i, id := range rm.order {
		if id == userID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}

	rm.broadcastLocked(models.EventUserLeft, models.UserLeftPayload{
		UserID:     userID,
		TotalUsers: len(rm.members),
	}, "")
	return len(rm.members) == 0
}

func (rm *Room) close(reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.broadcastLocked(models.EventRoomClosed, models.RoomClosedPayload{Reason: reason}, "")
}

func (rm *Room) syncTo(userID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if m, ok := rm.members[userID]; ok {
		m.conn.Send(rm.syncEventLocked())
	}
}

func (rm *Room) chat(msg models.ChatMessage) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.messages = append(rm.messages, msg)
	rm.broadcastLocked(models.EventChatMessage, msg, "")
}

func (rm *Room) react(p models.ChatReactionPayload) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	// Apply the toggle to the log as an immutable update so snapshots sent
	// to late joiners carry accumulated reactions.
	for i, msg := range rm.messages {
		if msg.ID == p.MsgID {
			rm.messages[i] = msg.ToggleReaction(p.Emoji, p.UserID)
			rm.broadcastLocked(models.EventChatReaction, p, "")
			return
		}
	}
}

func (rm *Room) startStream(userID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if userID != rm.hostID {
		return
	}
	rm.video = models.VideoState{
		SourceType:  models.SourceScreenshare,
		IsStreaming: true,
		LastUpdated: time.Now().UnixMilli(),
	}
	rm.broadcastLocked(models.EventStreamStarted, models.StreamStartedPayload{HostID: rm.hostID}, "")
}

func (rm *Room) stopStream(userID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if userID != rm.hostID {
		return
	}
	rm.video = models.VideoState{
		SourceType:  models.SourceIdle,
		LastUpdated: time.Now().UnixMilli(),
	}
	rm.broadcastLocked(models.EventStreamStopped, nil, "")
}

func (rm *Room) streamAction(userID string, action models.StreamAction) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if userID != rm.hostID || !rm.video.IsStreaming {
		return
	}
	rm.video.IsHostPaused = action.Type == models.ActionPause
	rm.video.LastUpdated = time.Now().UnixMilli()
	rm.broadcastLocked(models.EventStreamAction, action, "")
}

func (rm *Room) relay(env models.SignalEnvelope) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if env.Target != "" {
		target, ok := rm.members[env.Target]
		if !ok {
			// Fire-and-forget: a stale target is dropped without telling the
			// sender. The negotiator's retry policy is the recovery path.
			log.Debug().Str("room", rm.code).Str("target", env.Target).Msg("signal target not connected, dropped")
			return
		}
		evt, err := models.NewEvent(models.EventSignal, env)
		if err != nil {
			return
		}
		target.conn.Send(evt)
		return
	}
	rm.broadcastLocked(models.EventSignal, env, env.Sender)
}

func (rm *Room) memberCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// broadcastLocked fans an event out to every member except excludeID.
// Callers hold rm.mu, which is what keeps fan-out order consistent across
// members.
func (rm *Room) broadcastLocked(eventType string, payload interface{}, excludeID string) {
	evt, err := models.NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("marshal event")
		return
	}
	for id, m := range rm.members {
		if id != excludeID {
			m.conn.Send(evt)
		}
	}
}

func (rm *Room) syncEventLocked() models.Event {
	users := make([]models.User, 0, len(rm.order))
	for _, id := range rm.order {
		if m, ok := rm.members[id]; ok {
			users = append(users, m.user)
		}
	}
	messages := make([]models.ChatMessage, len(rm.messages))
	copy(messages, rm.messages)

	evt, _ := models.NewEvent(models.EventRoomSync, models.RoomSyncPayload{
		HostID:    rm.hostID,
		Streaming: rm.video.IsStreaming,
		Users:     users,
		Messages:  messages,
	})
	return evt
}
