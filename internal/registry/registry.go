// Package registry owns the live, in-memory state of every active room:
// membership, the chat log, playback state and signal routing. It is the
// source of truth while a room is running; the persistent store only decides
// whether a room exists and is still open at join time.
package registry

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/models"
)

// Sender delivers events to one connected participant. Implementations must
// not block; slow consumers are the implementation's problem, not the room's.
type Sender interface {
	Send(evt models.Event)
	UserID() string
}

// Registry maps room codes to live room state. Entries are created lazily on
// first join and dropped when the last member leaves or the room closes.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func New() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func (r *Registry) getOrCreate(code string) *Room {
	r.mu.RLock()
	room := r.rooms[code]
	r.mu.RUnlock()
	if room != nil {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room = r.rooms[code]; room != nil {
		return room
	}
	room = newRoom(code)
	r.rooms[code] = room
	log.Debug().Str("room", code).Msg("room activated")
	return room
}

func (r *Registry) get(code string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[code]
}

func (r *Registry) drop(code string) {
	r.mu.Lock()
	delete(r.rooms, code)
	r.mu.Unlock()
	log.Debug().Str("room", code).Msg("room discarded")
}

// Join adds a participant. Every member (the joiner included, so it can
// confirm the count) observes user:joined; the joiner alone then receives the
// room:sync snapshot, after the join has been applied.
func (r *Registry) Join(code string, user models.User, conn Sender) {
	room := r.getOrCreate(code)
	room.join(user, conn)
	log.Info().Str("room", code).Str("user", user.ID).Str("role", string(user.Role)).Msg("user joined")
}

// Leave removes a participant, explicitly or inferred from disconnect. When
// the last member leaves the in-memory state is discarded; the persisted
// document stays for TTL cleanup.
func (r *Registry) Leave(code string, userID string) {
	room := r.get(code)
	if room == nil {
		return
	}
	if empty := room.leave(userID); empty {
		r.drop(code)
	}
	log.Info().Str("room", code).Str("user", userID).Msg("user left")
}

// CloseRoom notifies every member and discards the room. Subsequent joins
// are rejected upstream by the store's isActive flag.
func (r *Registry) CloseRoom(code string, reason string) {
	room := r.get(code)
	if room == nil {
		return
	}
	room.close(reason)
	r.drop(code)
	log.Info().Str("room", code).Msg("room closed")
}

// Sync re-sends the room snapshot to a single member (room:refresh).
func (r *Registry) Sync(code string, userID string) {
	if room := r.get(code); room != nil {
		room.syncTo(userID)
	}
}

// Chat appends a message to the room log and fans it out to every member,
// the sender included.
func (r *Registry) Chat(code string, msg models.ChatMessage) {
	if room := r.get(code); room != nil {
		room.chat(msg)
	}
}

// Reaction toggles userID's emoji vote on a logged message and broadcasts
// the toggle to every member.
func (r *Registry) Reaction(code string, p models.ChatReactionPayload) {
	if room := r.get(code); room != nil {
		room.react(p)
	}
}

// StartStream transitions the room to LIVE. Non-host callers are silently
// ignored.
func (r *Registry) StartStream(code string, userID string) {
	if room := r.get(code); room != nil {
		room.startStream(userID)
	}
}

// StopStream transitions the room back to IDLE. Non-host callers are
// silently ignored.
func (r *Registry) StopStream(code string, userID string) {
	if room := r.get(code); room != nil {
		room.stopStream(userID)
	}
}

// StreamAction broadcasts a host play/pause hint. It does not tear down peer
// links; viewers keep their own local pause axis on top of it.
func (r *Registry) StreamAction(code string, userID string, action models.StreamAction) {
	if room := r.get(code); room != nil {
		room.streamAction(userID, action)
	}
}

// Relay routes a negotiation envelope: to the target member when one is
// named (silently dropped when absent), otherwise to the whole room minus
// the sender.
func (r *Registry) Relay(code string, env models.SignalEnvelope) {
	if room := r.get(code); room != nil {
		room.relay(env)
	}
}

// Members returns the current member count, for REST status and tests.
func (r *Registry) Members(code string) int {
	room := r.get(code)
	if room == nil {
		return 0
	}
	return room.memberCount()
}
