package models

import "strconv"

// Notification channels.
const (
	ChannelRoomEvents    = "room_events"
	ChannelMessageEvents = "message_events"
)

// Event names.
const (
	EventRoomCreated        = "room_created"
	EventRoomUpdated        = "room_updated"
	EventRoomDeleted        = "room_deleted"
	EventRoomRestored       = "room_restored"
	EventParticipantsAdded  = "participants_added"
	EventParticipantRemoved = "participant_removed"
	EventNewMessage         = "new_message"
	EventEditMessage        = "edit_message"
	EventDeleteMessage      = "delete_message"
	EventRestoreMessage     = "restore_message"
	EventMarkRead           = "mark_read"
)

// Event is published after a committed mutation. Recipients is the set of
// users whose live connections should receive it; it is not serialized.
type Event struct {
	Event      string  `json:"event"`
	RoomID     string  `json:"roomId"`
	Data       any     `json:"data"`
	Recipients []int64 `json:"-"`
}

// NewEvent builds an event for roomID.
func NewEvent(name string, roomID int64, data any, recipients []int64) Event {
	return Event{
		Event:      name,
		RoomID:     strconv.FormatInt(roomID, 10),
		Data:       data,
		Recipients: recipients,
	}
}
