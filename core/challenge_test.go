package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallengeExpired_Boundary(t *testing.T) {
	expiresAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	challenge := &Challenge{ExpiresAt: expiresAt}

	assert.False(t, challenge.Expired(expiresAt.Add(-time.Nanosecond)))
	assert.True(t, challenge.Expired(expiresAt), "the expiry instant itself is expired")
	assert.True(t, challenge.Expired(expiresAt.Add(time.Nanosecond)))
}
