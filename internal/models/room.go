package models

import (
	"strconv"
	"time"
)

// RoomKind distinguishes direct (1:1) rooms from group rooms.
type RoomKind string

const (
	RoomDirect RoomKind = "DIRECT"
	RoomGroup  RoomKind = "GROUP"
)

// Room is a persisted chat room. Name is nil for direct rooms; DedupKey is
// set only for direct rooms.
type Room struct {
	ID             int64      `db:"id" json:"id"`
	Kind           RoomKind   `db:"kind" json:"type"`
	Name           *string    `db:"name" json:"name"`
	OwnerID        int64      `db:"owner_id" json:"created_by"`
	DedupKey       *string    `db:"dedup_key" json:"-"`
	State          Lifecycle  `db:"state" json:"state"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	LastModifiedAt time.Time  `db:"last_modified_at" json:"last_modified_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at"`
	RestoredAt     *time.Time `db:"restored_at" json:"restored_at"`
	LastMessageID  *int64     `db:"last_message_id" json:"-"`

	ParticipantIDs []int64  `db:"-" json:"participants"`
	LastMessage    *Message `db:"-" json:"-"`
}

// HasParticipant reports whether userID is currently a member.
func (r Room) HasParticipant(userID int64) bool {
	for _, id := range r.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the non-self member of a direct room.
func (r Room) OtherParticipant(self int64) (int64, bool) {
	for _, id := range r.ParticipantIDs {
		if id != self {
			return id, true
		}
	}
	return 0, false
}

// DirectKey is the order-independent dedup key for a participant pair.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}

// DirectOutcome tells how CreateDirect resolved.
type DirectOutcome string

const (
	DirectCreated  DirectOutcome = "created"
	DirectRestored DirectOutcome = "restored"
	DirectExisting DirectOutcome = "existing"
)
