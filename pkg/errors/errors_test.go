package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidf(t *testing.T) {
	err := Invalidf("count must be positive, got %d", -1)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation error: count must be positive, got -1", err.Error())
}

func TestUnavailable(t *testing.T) {
	assert.True(t, Unavailable(fmt.Errorf("store: list: %w", ErrQuotaExceeded)))
	assert.True(t, Unavailable(fmt.Errorf("%w: 3 active calls", ErrSlotUnavailable)))
	assert.True(t, Unavailable(ErrUnavailable))
	assert.False(t, Unavailable(ErrNotFound))
	assert.False(t, Unavailable(nil))
}
