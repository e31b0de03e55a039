package models

import "time"

// RoomSettings holds host-chosen room appearance options
type RoomSettings struct {
	ThemeColor string `json:"themeColor"`
}

// DefaultThemeColor is applied when the creator does not pick one
const DefaultThemeColor = "#7652d6"

// RoomDocument is the persisted shape of a room. The store enforces code
// uniqueness and expires documents after the retention window.
type RoomDocument struct {
	ID        string       `json:"id"`
	Code      string       `json:"code"` // Short, shareable room code (e.g. "ABCD12")
	HostID    string       `json:"hostId"`
	Users     []User       `json:"users"`
	IsActive  bool         `json:"isActive"`
	CreatedAt time.Time    `json:"createdAt"`
	Settings  RoomSettings `json:"settings"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	Code     string        `json:"code,omitempty"` // generated when empty
	HostID   string        `json:"hostId,omitempty"`
	Settings *RoomSettings `json:"settings,omitempty"`
}

// JoinRoomRequest adds a user to a room's persisted member list
type JoinRoomRequest struct {
	User User `json:"user" binding:"required"`
}

// LeaveRoomRequest removes a user from a room's persisted member list
type LeaveRoomRequest struct {
	UserID string `json:"userId" binding:"required"`
}
