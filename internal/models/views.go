package models

import "time"

// RoomView is the room representation returned to clients.
type RoomView struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	Type                RoomKind        `json:"type"`
	CreatedBy           int64           `json:"created_by"`
	Participants        []UserSummary   `json:"participants"`
	CreatedAt           time.Time       `json:"created_at"`
	LastModifiedAt      time.Time       `json:"last_modified_at"`
	IsActive            bool            `json:"is_active"`
	LastMessage         *MessageSummary `json:"last_message"`
	UnreadMessagesCount int             `json:"unread_messages_count"`
	IsDeleted           bool            `json:"is_deleted"`
	DeletedAt           *time.Time      `json:"deleted_at"`
	IsRestored          bool            `json:"is_restored"`
	RestoredAt          *time.Time      `json:"restored_at"`
}

// MessageSummary is the last-message preview embedded in RoomView.
type MessageSummary struct {
	ID        int64       `json:"id"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Sender    UserSummary `json:"sender"`
}

// MessageView is the message representation returned to clients.
type MessageView struct {
	ID             int64         `json:"id"`
	Room           int64         `json:"room"`
	Sender         UserSummary   `json:"sender"`
	Content        string        `json:"content"`
	Timestamp      time.Time     `json:"timestamp"`
	IsDeleted      bool          `json:"is_deleted"`
	DeletedAt      *time.Time    `json:"deleted_at"`
	IsModified     bool          `json:"is_modified"`
	LastModifiedAt *time.Time    `json:"last_modified_at"`
	IsRestored     bool          `json:"is_restored"`
	RestoredAt     *time.Time    `json:"restored_at"`
	Delivered      bool          `json:"delivered"`
	Sent           bool          `json:"sent"`
	ReadBy         []UserSummary `json:"read_by"`
}

// RoomPage is one page of ListForUser.
type RoomPage struct {
	Results []RoomView `json:"results"`
	Next    *string    `json:"next"`
}

// MessagePage is one page of ListForRoom.
type MessagePage struct {
	Results []MessageView `json:"results"`
	Next    *string       `json:"next"`
}
