package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultLimiter(t *testing.T) {
	rl := NewResultLimiter(5)

	assert.NoError(t, rl.Add(3))
	assert.Equal(t, 2, rl.Remaining())

	err := rl.Add(3)
	assert.ErrorIs(t, err, ErrResultTooLarge)
	assert.Equal(t, 3, rl.Count(), "rejected batch is not counted")

	assert.NoError(t, rl.Add(2))
	assert.Equal(t, 0, rl.Remaining())
}

func TestResultLimiter_Unlimited(t *testing.T) {
	rl := NewResultLimiter(0)
	assert.NoError(t, rl.Add(1_000_000))
	assert.Equal(t, -1, rl.Remaining())
}
