package store

import (
	"context"
	"errors"

	"github.com/Mitahi-1810/stream-mates/internal/models"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomClosed    = errors.New("room has been closed")
	ErrDuplicateCode = errors.New("room code already in use")
)

// RoomStore is the persistence contract for room documents. It answers
// "does this room exist / is it still open" at join time; live signaling
// state is owned by the in-memory registry, not by the store.
type RoomStore interface {
	// InsertRoom stores a new room document. Fails with ErrDuplicateCode when
	// the code is already taken by a live document.
	InsertRoom(ctx context.Context, doc models.RoomDocument) error

	// FindRoomByCode returns the document for code or ErrRoomNotFound.
	// Closed rooms are still returned; callers check IsActive.
	FindRoomByCode(ctx context.Context, code string) (*models.RoomDocument, error)

	// AddUser appends user to the member list and claims the host slot when
	// it is empty and the user joins as host. Returns the updated document.
	AddUser(ctx context.Context, code string, user models.User) (*models.RoomDocument, error)

	// RemoveUser removes userID from the member list. Unknown users are a no-op.
	RemoveUser(ctx context.Context, code string, userID string) error

	// CloseRoom marks the document inactive. The document remains until TTL
	// expiry so later joins can distinguish closed from never-existed.
	CloseRoom(ctx context.Context, code string) error
}
