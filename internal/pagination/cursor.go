// Package pagination implements the opaque keyset cursor shared by the room
// and message listings. A cursor encodes the (timestamp, id) tuple of the
// last row of a page; rows are always ordered by that tuple descending.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the last-seen ordering key.
type Cursor struct {
	At time.Time `json:"t"`
	ID int64     `json:"id"`
}

// Query selects one page.
type Query struct {
	After *Cursor
	Limit int
}

// Encode returns the URL-safe form of c.
func Encode(c Cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses a cursor produced by Encode. The empty string means "first page".
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.ID <= 0 || c.At.IsZero() {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Before reports whether (at, id) sorts strictly after c in descending order,
// i.e. belongs to the page following c.
func (c Cursor) Before(at time.Time, id int64) bool {
	if at.Equal(c.At) {
		return id < c.ID
	}
	return at.Before(c.At)
}

// Next returns the cursor for the following page, or nil when the page was
// not full. fetched holds limit+1 rows at most; key extracts the ordering tuple.
func Next[T any](fetched []T, limit int, key func(T) Cursor) ([]T, *string) {
	if len(fetched) <= limit {
		return fetched, nil
	}
	page := fetched[:limit]
	token := Encode(key(page[len(page)-1]))
	return page, &token
}
