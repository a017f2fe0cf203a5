package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/models"
	"chat-core/internal/services"
	"chat-core/internal/telemetry"
)

// RoomHandler exposes the room endpoints.
type RoomHandler struct {
	rooms *services.RoomService
	audit *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler. audit may be nil.
func NewRoomHandler(rooms *services.RoomService, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, audit: audit}
}

// ListRooms returns one page of the caller's rooms.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	cursor, limit, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := h.rooms.ListForUser(c.Request.Context(), user, c.Query("search"), cursor, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// StartDirect creates, restores or returns the direct room with another user.
func (h *RoomHandler) StartDirect(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, outcome, err := h.rooms.CreateDirect(c.Request.Context(), user, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if outcome == models.DirectCreated {
		status = http.StatusCreated
	}
	c.JSON(status, room)
}

// CreateGroup creates a named group room.
func (h *RoomHandler) CreateGroup(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Name      string  `json:"name"`
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.CreateGroup(c.Request.Context(), user, req.Name, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// GetRoom returns a single room.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	room, err := h.rooms.Retrieve(c.Request.Context(), user, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// RenameRoom updates a group room's name.
func (h *RoomHandler) RenameRoom(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.UpdateName(c.Request.Context(), user, roomID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// DeleteRoom soft-deletes a room.
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	room, err := h.rooms.SoftDelete(c.Request.Context(), user, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	emitAudit(c, h.audit, user, "room_deleted", "room", roomID)
	c.JSON(http.StatusOK, room)
}

// RestoreRoom brings a soft-deleted room back.
func (h *RoomHandler) RestoreRoom(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	room, err := h.rooms.Restore(c.Request.Context(), user, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	emitAudit(c, h.audit, user, "room_restored", "room", roomID)
	c.JSON(http.StatusOK, room)
}

// AddParticipants adds members to a group room.
func (h *RoomHandler) AddParticipants(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	var req struct {
		UserIDs []int64 `json:"user_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, added, err := h.rooms.AddParticipants(c.Request.Context(), user, roomID, req.UserIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	if added == nil {
		added = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "added_user_ids": added})
}

// RemoveParticipant removes one member from a group room.
func (h *RoomHandler) RemoveParticipant(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "room_id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	room, err := h.rooms.RemoveParticipant(c.Request.Context(), user, roomID, memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}
