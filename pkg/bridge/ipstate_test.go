package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIPStates(now time.Time) *ipStates {
	s := newIPStates()
	s.maxConnPerSecond = 2
	s.maxAuthAttempts = 3
	s.lockoutDuration = time.Second
	s.now = func() time.Time { return now }
	return s
}

func TestIPStatesConnectionRateCap(t *testing.T) {
	now := time.Now()
	s := newTestIPStates(now)

	assert.True(t, s.allowConnect("1.2.3.4"))
	assert.True(t, s.allowConnect("1.2.3.4"))
	assert.False(t, s.allowConnect("1.2.3.4"), "third connect within the same instant must be refused")
}

func TestIPStatesAuthLockout(t *testing.T) {
	now := time.Now()
	s := newTestIPStates(now)

	require.False(t, s.recordAuthFailure("1.2.3.4"))
	require.False(t, s.recordAuthFailure("1.2.3.4"))
	assert.True(t, s.recordAuthFailure("1.2.3.4"), "third failure must trigger lockout at maxAuthAttempts=3")
	assert.True(t, s.isLockedOut("1.2.3.4"))
}

func TestIPStatesAuthSuccessResetsFailures(t *testing.T) {
	now := time.Now()
	s := newTestIPStates(now)

	s.recordAuthFailure("1.2.3.4")
	s.recordAuthFailure("1.2.3.4")
	s.recordAuthSuccess("1.2.3.4")

	st := s.getOrCreate("1.2.3.4")
	st.mu.Lock()
	failures := st.authFailures
	st.mu.Unlock()
	assert.Equal(t, 0, failures)
}

func TestIPStatesSweepRemovesIdleExpiredEntries(t *testing.T) {
	now := time.Now()
	s := newTestIPStates(now)
	s.getOrCreate("1.2.3.4")

	future := now.Add(2 * ipStateIdleGrace)
	s.now = func() time.Time { return future }
	s.sweep()

	s.mu.Lock()
	_, exists := s.states["1.2.3.4"]
	s.mu.Unlock()
	assert.False(t, exists)
}

func TestIPStatesSweepKeepsLockedOutEntries(t *testing.T) {
	now := time.Now()
	s := newTestIPStates(now)
	s.recordAuthFailure("1.2.3.4")
	s.recordAuthFailure("1.2.3.4")
	s.recordAuthFailure("1.2.3.4") // locked out, lockoutUntil = now+1s

	soon := now.Add(2 * time.Second) // lockout elapsed, but not idle-expired
	s.now = func() time.Time { return soon }
	s.sweep()

	s.mu.Lock()
	_, exists := s.states["1.2.3.4"]
	s.mu.Unlock()
	assert.True(t, exists, "entry must survive until idle grace also elapses")
}
