package models

// MessageType distinguishes plain text from externally-sourced media
type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeGif  MessageType = "gif"
)

// Reaction aggregates one emoji's votes on a message. Count always equals
// len(UserIDs); a user appears at most once.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"userIds"`
}

// ReplyRef is a denormalized snapshot of the message being replied to, kept
// so the reply renders even if the original is no longer available.
type ReplyRef struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

// ChatMessage is one entry in a room's append-only chat log.
type ChatMessage struct {
	ID         string              `json:"id"`
	UserID     string              `json:"userId"`
	UserName   string              `json:"userName"`
	UserAvatar string              `json:"userAvatar,omitempty"`
	UserColor  string              `json:"userColor,omitempty"`
	Text       string              `json:"text"`
	Timestamp  int64               `json:"timestamp"`
	IsSystem   bool                `json:"isSystem,omitempty"`
	Type       MessageType         `json:"type,omitempty"`
	ReplyTo    *ReplyRef           `json:"replyTo,omitempty"`
	Reactions  map[string]Reaction `json:"reactions,omitempty"` // keyed by emoji
}

// ToggleReaction returns a copy of the message with userID's vote for emoji
// flipped. The receiver is never mutated; reaction maps and id slices are
// cloned so broadcast fan-out and optimistic local updates cannot alias.
func (m ChatMessage) ToggleReaction(emoji, userID string) ChatMessage {
	reactions := make(map[string]Reaction, len(m.Reactions)+1)
	for k, v := range m.Reactions {
		ids := make([]string, len(v.UserIDs))
		copy(ids, v.UserIDs)
		reactions[k] = Reaction{Emoji: v.Emoji, Count: v.Count, UserIDs: ids}
	}

	current := reactions[emoji]
	ids := current.UserIDs
	found := false
	for i, id := range ids {
		if id == userID {
			ids = append(ids[:i], ids[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, userID)
	}

	if len(ids) == 0 {
		delete(reactions, emoji)
	} else {
		reactions[emoji] = Reaction{Emoji: emoji, Count: len(ids), UserIDs: ids}
	}
	if len(reactions) == 0 {
		reactions = nil
	}

	m.Reactions = reactions
	return m
}
