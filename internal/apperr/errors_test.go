package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(Validation("bad")))
	assert.Equal(t, CodeForbidden, CodeOf(fmt.Errorf("wrapped: %w", Forbidden("no"))))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestMessageOfHidesInternalDetails(t *testing.T) {
	err := Internal("load rooms", errors.New("pq: connection refused"))

	assert.Equal(t, "internal server error", MessageOf(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "room not found", MessageOf(NotFound("room not found")))
}

func TestIs(t *testing.T) {
	assert.True(t, Is(Conflict("already deleted"), CodeConflict))
	assert.False(t, Is(nil, CodeConflict))
	assert.False(t, Is(NotFound("x"), CodeConflict))
}
