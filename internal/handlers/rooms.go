package handlers

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Mitahi-1810/stream-mates/internal/models"
	"github.com/Mitahi-1810/stream-mates/internal/registry"
	"github.com/Mitahi-1810/stream-mates/internal/store"
)

const (
	roomCodeLength = 6
	codeChars      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// RoomHandlers is the REST surface for room lifecycle, used before a
// client's real-time channel attaches.
type RoomHandlers struct {
	st  store.RoomStore
	reg *registry.Registry
}

func NewRoomHandlers(st store.RoomStore, reg *registry.Registry) *RoomHandlers {
	return &RoomHandlers{st: st, reg: reg}
}

// CreateRoom creates a room document. The creator may supply a code; an
// omitted one is generated. Collisions surface as 409 so the caller can
// retry with a new code.
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	code := req.Code
	if code == "" {
		code = generateRoomCode()
	}

	settings := models.RoomSettings{ThemeColor: models.DefaultThemeColor}
	if req.Settings != nil && req.Settings.ThemeColor != "" {
		settings = *req.Settings
	}

	doc := models.RoomDocument{
		ID:        uuid.New().String(),
		Code:      code,
		HostID:    req.HostID,
		Users:     []models.User{},
		IsActive:  true,
		CreatedAt: time.Now(),
		Settings:  settings,
	}

	if err := h.st.InsertRoom(c.Request.Context(), doc); err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Room code already in use"})
			return
		}
		log.Error().Err(err).Str("room", code).Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to create room"})
		return
	}

	log.Info().Str("room", code).Str("host", req.HostID).Msg("room created")
	c.JSON(http.StatusCreated, gin.H{"success": true, "room": doc})
}

// GetRoom fetches a room by code. A closed room answers 410 so callers can
// tell "gone" apart from "never existed".
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	doc, err := h.st.FindRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	if !doc.IsActive {
		c.JSON(http.StatusGone, gin.H{"success": false, "error": "Room has been closed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "room": doc})
}

// JoinRoom adds a user to the persisted member list and returns the updated
// document.
func (h *RoomHandlers) JoinRoom(c *gin.Context) {
	var req models.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	doc, err := h.st.AddUser(c.Request.Context(), c.Param("code"), req.User)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "room": doc})
}

// LeaveRoom removes a user from the persisted member list.
func (h *RoomHandlers) LeaveRoom(c *gin.Context) {
	var req models.LeaveRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	if err := h.st.RemoveUser(c.Request.Context(), c.Param("code"), req.UserID); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CloseRoom marks the room inactive and evicts any live members.
func (h *RoomHandlers) CloseRoom(c *gin.Context) {
	code := c.Param("code")
	if err := h.st.CloseRoom(c.Request.Context(), code); err != nil {
		h.storeError(c, err)
		return
	}
	h.reg.CloseRoom(code, "closed by host")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UnixMilli()})
}

func (h *RoomHandlers) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Room not found"})
	case errors.Is(err, store.ErrRoomClosed):
		c.JSON(http.StatusGone, gin.H{"success": false, "error": "Room has been closed"})
	default:
		log.Error().Err(err).Msg("store operation")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal error"})
	}
}

// generateRoomCode generates a random room code
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
