package models

// Role determines what a participant may do in a room
type Role string

const (
	RoleHost   Role = "HOST"
	RoleViewer Role = "VIEWER"
)

// User is a room participant. The id is generated client-side at join time
// and is not cryptographically bound to the connection (see identity package).
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
}
