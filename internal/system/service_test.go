package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

type recordingService struct {
	name     string
	startErr error
	stopErr  error
	events   *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	*s.events = append(*s.events, "start "+s.name)
	return s.startErr
}

func (s *recordingService) Stop(context.Context) error {
	*s.events = append(*s.events, "stop "+s.name)
	return s.stopErr
}

func TestManager_Order(t *testing.T) {
	var events []string
	m := NewManager(logger.NewDiscard())
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", events: &events}))
	assert.Error(t, m.Register(&recordingService{name: "a", events: &events}))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Register(&recordingService{name: "c", events: &events}))
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, events)
}

func TestManager_StartFailureStopsStarted(t *testing.T) {
	var events []string
	boom := errors.New("boom")
	m := NewManager(logger.NewDiscard())
	require.NoError(t, m.Register(&recordingService{name: "a", events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", startErr: boom, events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "c", events: &events}))

	err := m.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, events)
}

func TestManager_StopJoinsErrors(t *testing.T) {
	var events []string
	errA, errB := errors.New("a failed"), errors.New("b failed")
	m := NewManager(logger.NewDiscard())
	require.NoError(t, m.Register(&recordingService{name: "a", stopErr: errA, events: &events}))
	require.NoError(t, m.Register(&recordingService{name: "b", stopErr: errB, events: &events}))

	require.NoError(t, m.Start(context.Background()))
	err := m.Stop(context.Background())
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestManager_RejectsNil(t *testing.T) {
	assert.Error(t, NewManager(nil).Register(nil))
}
