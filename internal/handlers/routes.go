package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the room and message endpoints on an authenticated group.
func RegisterRoutes(api gin.IRoutes, rooms *RoomHandler, messages *MessageHandler) {
	api.GET("/rooms", rooms.ListRooms)
	api.POST("/rooms/direct", rooms.StartDirect)
	api.POST("/rooms/group", rooms.CreateGroup)
	api.GET("/rooms/:room_id", rooms.GetRoom)
	api.PATCH("/rooms/:room_id", rooms.RenameRoom)
	api.DELETE("/rooms/:room_id", rooms.DeleteRoom)
	api.POST("/rooms/:room_id/restore", rooms.RestoreRoom)
	api.POST("/rooms/:room_id/participants", rooms.AddParticipants)
	api.DELETE("/rooms/:room_id/participants/:user_id", rooms.RemoveParticipant)

	api.GET("/rooms/:room_id/messages", messages.ListMessages)
	api.POST("/rooms/:room_id/messages", messages.PostMessage)
	api.GET("/rooms/:room_id/messages/deleted", messages.ListDeleted)
	api.PATCH("/rooms/:room_id/messages/:message_id", messages.EditMessage)
	api.DELETE("/rooms/:room_id/messages/:message_id", messages.DeleteMessage)
	api.POST("/rooms/:room_id/read", messages.MarkRead)
	api.GET("/messages/:message_id", messages.GetMessage)
	api.POST("/messages/:message_id/restore", messages.RestoreMessage)
}

// Healthz reports liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
