package tunnel

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/config"
)

func TestSupervisor_InitialState(t *testing.T) {
	s := New(config.TunnelConfig{Enable: true}, zerolog.Nop())
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.LocalAddr())
}

func TestSupervisor_StartRejectsDisabledConfig(t *testing.T) {
	s := New(config.TunnelConfig{Enable: false}, zerolog.Nop())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, s.State())
}

func TestSupervisor_StartFailureLeavesDegraded(t *testing.T) {
	s := New(config.TunnelConfig{
		Enable:  true,
		Host:    "127.0.0.1:1", // nothing listens here
		User:    "deploy",
		KeyPath: "/nonexistent/key",
	}, zerolog.Nop())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDegraded, s.State())
}

func TestSupervisor_StopFromIdleIsSafe(t *testing.T) {
	s := New(config.TunnelConfig{Enable: true}, zerolog.Nop())
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

func TestRestartBackoffSchedule(t *testing.T) {
	require.Len(t, restartBackoff, 3)
	assert.Less(t, restartBackoff[0], restartBackoff[1])
	assert.Less(t, restartBackoff[1], restartBackoff[2])
	assert.Less(t, restartBackoff[2], maxRestartBackoff)
}
