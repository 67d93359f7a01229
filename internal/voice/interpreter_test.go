package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/dispatch"
	"github.com/home-device-controller/backend/internal/homeapi"
)

type mockMutator struct {
	mock.Mock
}

func (m *mockMutator) MutateDevice(ctx context.Context, externalUID string, metadata map[string]any) (*homeapi.RawDevice, error) {
	args := m.Called(ctx, externalUID, metadata)
	return nil, args.Error(1)
}

type resultLog struct {
	mu      sync.Mutex
	results []Result
}

func (l *resultLog) VoiceResult(_ context.Context, r Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

func (l *resultLog) all() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Result(nil), l.results...)
}

func fleet() *device.Registry {
	now := time.Now()
	reg := device.NewRegistry(zerolog.Nop())
	reg.UpsertFromPoll([]device.Snapshot{
		{ID: "1", ExternalUID: "uid-1", DisplayName: "Living Room Lamp", Class: device.ClassLight, LastSeenAt: now, Metadata: map[string]any{"state": true}},
		{ID: "2", ExternalUID: "uid-2", DisplayName: "Desk Light", Class: device.ClassLight, LastSeenAt: now, Metadata: map[string]any{"state": false}},
		{ID: "3", ExternalUID: "uid-3", DisplayName: "Hall Sensor", Class: device.ClassSensor, LastSeenAt: now, Metadata: map[string]any{"value": 21.0}},
	})
	return reg
}

func setup(t *testing.T) (*Interpreter, *device.Registry, *mockMutator, *resultLog) {
	t.Helper()
	reg := fleet()
	api := &mockMutator{}
	d := dispatch.New(reg, api, zerolog.Nop())
	log := &resultLog{}
	return NewInterpreter(reg, d, zerolog.Nop(), log), reg, api, log
}

func TestSubmit_TurnOnAllTargetsOnlyLights(t *testing.T) {
	interp, reg, api, _ := setup(t)
	api.On("MutateDevice", mock.Anything, "uid-1", mock.Anything).Return(nil, nil)
	api.On("MutateDevice", mock.Anything, "uid-2", mock.Anything).Return(nil, nil)

	res := interp.Submit(context.Background(), "turn on all")

	assert.Equal(t, ResultApplied, res.Kind)
	require.NotNil(t, res.Bulk)
	assert.Equal(t, []string{"1", "2"}, res.Bulk.Succeeded)
	assert.Equal(t, "Turned on 2 of 2 devices", res.Message)
	api.AssertNumberOfCalls(t, "MutateDevice", 2)
	api.AssertNotCalled(t, "MutateDevice", mock.Anything, "uid-3", mock.Anything)

	s, _ := reg.Get("2")
	assert.Equal(t, true, s.Metadata["state"])
}

func TestSubmit_TurnOffNamedDevice(t *testing.T) {
	interp, reg, api, log := setup(t)
	api.On("MutateDevice", mock.Anything, "uid-1", map[string]any{"state": false}).Return(nil, nil).Once()

	res := interp.Submit(context.Background(), "turn off living room lamp")

	assert.Equal(t, ResultApplied, res.Kind)
	require.NotNil(t, res.Device)
	assert.Equal(t, "1", res.Device.ID)
	assert.Equal(t, "Turned off Living Room Lamp", res.Message)
	api.AssertExpectations(t)

	s, _ := reg.Get("1")
	assert.Equal(t, false, s.Metadata["state"])
	require.Len(t, log.all(), 1)
}

func TestSubmit_DeviceNotFound(t *testing.T) {
	interp, _, api, log := setup(t)

	res := interp.Submit(context.Background(), "turn on kitchen")

	assert.Equal(t, ResultDeviceNotFound, res.Kind)
	assert.Equal(t, "kitchen", res.Intent.TargetName)
	assert.Equal(t, `Device "kitchen" not found`, res.Message)
	api.AssertNotCalled(t, "MutateDevice", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, log.all(), 1)
}

func TestSubmit_MissingNameActsOnFirstDevice(t *testing.T) {
	interp, reg, api, _ := setup(t)
	api.On("MutateDevice", mock.Anything, "uid-1", map[string]any{"state": true}).Return(nil, nil).Once()

	res := interp.Submit(context.Background(), "turn on")

	assert.Equal(t, ResultApplied, res.Kind)
	assert.Empty(t, res.Intent.TargetName)
	require.NotNil(t, res.Device)
	assert.Equal(t, "1", res.Device.ID)
	assert.Equal(t, "Turned on Living Room Lamp", res.Message)
	api.AssertExpectations(t)

	s, _ := reg.Get("1")
	assert.Equal(t, true, s.Metadata["state"])
}

func TestSubmit_Unrecognized(t *testing.T) {
	interp, _, api, _ := setup(t)

	res := interp.Submit(context.Background(), "play music")

	assert.Equal(t, ResultUnrecognized, res.Kind)
	assert.Equal(t, "Command not recognized", res.Message)
	api.AssertNotCalled(t, "MutateDevice", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_DispatchFailed(t *testing.T) {
	interp, reg, api, _ := setup(t)
	api.On("MutateDevice", mock.Anything, "uid-2", mock.Anything).Return(nil, errors.New("offline"))

	res := interp.Submit(context.Background(), "turn on desk light")

	assert.Equal(t, ResultDispatchFailed, res.Kind)
	assert.Contains(t, res.Error, "offline")
	require.NotNil(t, res.Device)
	assert.Equal(t, "2", res.Device.ID)

	s, _ := reg.Get("2")
	assert.Equal(t, false, s.Metadata["state"])
}

func TestSubmit_BulkPartialFailureStillApplied(t *testing.T) {
	interp, _, api, _ := setup(t)
	api.On("MutateDevice", mock.Anything, "uid-1", mock.Anything).Return(nil, errors.New("timeout"))
	api.On("MutateDevice", mock.Anything, "uid-2", mock.Anything).Return(nil, nil)

	res := interp.Submit(context.Background(), "all off")

	assert.Equal(t, ResultApplied, res.Kind)
	require.NotNil(t, res.Bulk)
	assert.False(t, res.Bulk.TurnOn)
	assert.Equal(t, []string{"2"}, res.Bulk.Succeeded)
	assert.Equal(t, "Turned off 1 of 2 devices", res.Message)
}
