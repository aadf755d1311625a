package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesPerFailure(t *testing.T) {
	b := DefaultBackoff()

	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
}

func TestBackoffCapsAtMax(t *testing.T) {
	b := DefaultBackoff()

	assert.Equal(t, time.Hour, b.Delay(12))
	assert.Equal(t, time.Hour, b.Delay(40), "large counts must not overflow past the cap")
}
