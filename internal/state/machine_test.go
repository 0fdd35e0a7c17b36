package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineExclusion(t *testing.T) {
	t.Parallel()

	var changes []string
	m := NewMachine("", func(from, to string) {
		changes = append(changes, from+">"+to)
	})
	assert.Equal(t, ModeOffline, m.Current())

	require.NoError(t, m.Trigger(EventWakeUp))
	require.NoError(t, m.Trigger(EventStartDriving))

	assert.False(t, m.CanTransition(EventStartCharging))
	assert.Error(t, m.Trigger(EventStartCharging))
	assert.Equal(t, ModeDriving, m.Current())

	require.NoError(t, m.Trigger(EventStopDriving))
	require.NoError(t, m.Trigger(EventStartCharging))
	assert.False(t, m.CanTransition(EventStartDriving))
	assert.False(t, m.CanTransition(EventGoOffline))

	require.NoError(t, m.Trigger(EventStopCharging))
	assert.Equal(t, ModeParked, m.Current())

	assert.Equal(t, []string{
		"offline>parked",
		"parked>driving",
		"driving>parked",
		"parked>charging",
		"charging>parked",
	}, changes)
}

func TestMachineStartFromOffline(t *testing.T) {
	t.Parallel()
	m := NewMachine(ModeOffline, nil)
	assert.True(t, m.CanTransition(EventStartDriving))
	assert.True(t, m.CanTransition(EventStartCharging))
	assert.False(t, m.CanTransition(EventStopDriving))
}
