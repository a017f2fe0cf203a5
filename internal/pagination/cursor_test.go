package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 123456000, time.UTC)
	token := Encode(Cursor{At: at, ID: 42})

	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")

	decoded, err := Decode(token)
	require.NoError(t, err)
	assert.True(t, decoded.At.Equal(at))
	assert.Equal(t, int64(42), decoded.ID)
}

func TestDecodeEmptyMeansFirstPage(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", Encode(Cursor{})} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, 5, ClampLimit(5))
	assert.Equal(t, MaxLimit, ClampLimit(500))
}

func TestCursorBefore(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Cursor{At: at, ID: 10}

	assert.True(t, c.Before(at, 9))
	assert.False(t, c.Before(at, 10))
	assert.False(t, c.Before(at, 11))
	assert.True(t, c.Before(at.Add(-time.Second), 99))
	assert.False(t, c.Before(at.Add(time.Second), 1))
}

func TestNextTrimsAndEmitsToken(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []int64{5, 4, 3}
	key := func(id int64) Cursor { return Cursor{At: at, ID: id} }

	page, next := Next(rows, 2, key)
	require.NotNil(t, next)
	assert.Equal(t, []int64{5, 4}, page)

	c, err := Decode(*next)
	require.NoError(t, err)
	assert.Equal(t, int64(4), c.ID)

	page, next = Next(rows, 3, key)
	assert.Nil(t, next)
	assert.Len(t, page, 3)
}
