package models

import "time"

// DeletedMessagePlaceholder replaces the content of deleted messages in every
// outward representation.
const DeletedMessagePlaceholder = "This message was deleted"

// Message is a persisted chat message.
type Message struct {
	ID             int64      `db:"id" json:"id"`
	RoomID         int64      `db:"room_id" json:"room"`
	SenderID       int64      `db:"sender_id" json:"sender_id"`
	Content        string     `db:"content" json:"content"`
	State          Lifecycle  `db:"state" json:"state"`
	CreatedAt      time.Time  `db:"created_at" json:"timestamp"`
	Modified       bool       `db:"modified" json:"is_modified"`
	LastModifiedAt *time.Time `db:"last_modified_at" json:"last_modified_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at"`
	RestoredAt     *time.Time `db:"restored_at" json:"restored_at"`
	Sent           bool       `db:"sent" json:"sent"`
	Delivered      bool       `db:"delivered" json:"delivered"`

	ReadBy []int64 `db:"-" json:"read_by"`
}

// VisibleContent returns the content shown to clients.
func (m Message) VisibleContent() string {
	if m.State == LifecycleDeleted {
		return DeletedMessagePlaceholder
	}
	return m.Content
}

// IsReadBy reports whether userID acknowledged the message.
func (m Message) IsReadBy(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
