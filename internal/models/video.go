package models

// VideoSourceType identifies what the host is currently sharing
type VideoSourceType string

const (
	SourceIdle        VideoSourceType = "IDLE"
	SourceScreenshare VideoSourceType = "SCREENSHARE"
)

// VideoState is room-scoped broadcast playback state. IsHostPaused is only
// meaningful while IsStreaming is true; viewers may additionally pause their
// own local playback without touching this.
type VideoState struct {
	SourceType   VideoSourceType `json:"sourceType"`
	IsStreaming  bool            `json:"isStreaming"`
	IsHostPaused bool            `json:"isHostPaused"`
	LastUpdated  int64           `json:"lastUpdated"`
}

// StreamAction is a host playback hint broadcast to every member
type StreamAction struct {
	Type      string `json:"type"` // "play" or "pause"
	Timestamp int64  `json:"timestamp"`
}

const (
	ActionPlay  = "play"
	ActionPause = "pause"
)
