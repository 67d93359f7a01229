package controller_test

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/dispatch"
	"github.com/home-device-controller/backend/internal/events"
	"github.com/home-device-controller/backend/internal/homeapi"
	"github.com/home-device-controller/backend/internal/homeapi/homeapitest"
	"github.com/home-device-controller/backend/internal/storage"
	"github.com/home-device-controller/backend/internal/storage/models"
	"github.com/home-device-controller/backend/internal/voice"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	backend     *homeapitest.Server
	ctrl        *controller.Controller
	events      *events.Recorder
	commands    *storage.CommandLogRepository
	transcripts *storage.TranscriptRepository
}

func newFixture(t *testing.T, opts ...controller.Option) *fixture {
	t.Helper()

	backend := homeapitest.NewServer()
	t.Cleanup(backend.Close)

	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "controller.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		backend:     backend,
		events:      &events.Recorder{},
		commands:    storage.NewCommandLogRepository(db),
		transcripts: storage.NewTranscriptRepository(db),
	}

	client := homeapi.NewClient(
		homeapi.Config{BaseURL: backend.URL(), Timeout: 5 * time.Second},
		homeapi.StaticCredentials{Token: "tok", UserID: "u-1"},
	)
	all := append([]controller.Option{
		controller.WithPublisher(f.events),
		controller.WithCommandLog(f.commands),
		controller.WithTranscriptLog(f.transcripts),
	}, opts...)
	f.ctrl = controller.New(controller.Config{FallbackName: "Unnamed Device"}, client, zerolog.Nop(), all...)
	return f
}

func lights(seen time.Time) []homeapi.RawDevice {
	return []homeapi.RawDevice{
		homeapitest.Device("1", "uid-1", "Living Room Lamp", "light", seen, map[string]any{"state": false}),
		homeapitest.Device("2", "uid-2", "Desk Light", "light", seen, map[string]any{"state": false}),
		homeapitest.Device("3", "uid-3", "Porch Switch", "switch", seen, map[string]any{"state": false}),
		homeapitest.Device("4", "uid-4", "Hall Sensor", "sensor", seen, map[string]any{"value": 21.5}),
	}
}

func state(t *testing.T, views []controller.DeviceView, id string) any {
	t.Helper()
	for _, v := range views {
		if v.ID == id {
			return v.Metadata["state"]
		}
	}
	t.Fatalf("device %s not in snapshot", id)
	return nil
}

func TestToggleAllIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.SetDevices(lights(time.Now())...)
	f.backend.FailUpdates("uid-2", http.StatusInternalServerError)
	require.NoError(t, f.ctrl.Refresh(ctx))

	out := f.ctrl.ToggleAll(ctx, true)

	assert.Equal(t, []string{"1", "3"}, out.Succeeded)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, "2", out.Failed[0].DeviceID)
	assert.Equal(t, "API error (status 500): Device update failed", out.Failed[0].Reason)

	views := f.ctrl.RegistrySnapshot(time.Now())
	assert.Equal(t, true, state(t, views, "1"))
	assert.Equal(t, false, state(t, views, "2"))
	assert.Equal(t, true, state(t, views, "3"))

	for _, m := range f.backend.Mutations() {
		assert.NotEqual(t, "uid-4", m.DeviceUID, "sensor must not be targeted")
	}

	assert.Len(t, f.events.OfType(events.TypeBulkCompleted), 1)
	assert.Len(t, f.events.OfType(events.TypeCommandCompleted), 3)
	assert.Len(t, f.events.OfType(events.TypeDeviceStateChanged), 2)
	notes := f.events.OfType(events.TypeNotification)
	require.Len(t, notes, 1)
	assert.Equal(t, "1 of 3 devices failed", notes[0].Payload.(events.NotificationPayload).Message)

	records, err := f.commands.List(ctx, models.CommandFilter{BulkID: out.BulkID})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestToggleDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.SetDevices(lights(time.Now())...)
	require.NoError(t, f.ctrl.Refresh(ctx))

	snap, err := f.ctrl.ToggleDevice(ctx, "2", true)
	require.NoError(t, err)
	assert.Equal(t, true, snap.Metadata["state"])

	_, err = f.ctrl.ToggleDevice(ctx, "99", true)
	assert.ErrorIs(t, err, dispatch.ErrDeviceNotFound)

	f.backend.FailUpdates("uid-1", http.StatusBadGateway)
	_, err = f.ctrl.ToggleDevice(ctx, "1", true)
	var apiErr *homeapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, false, state(t, f.ctrl.RegistrySnapshot(time.Now()), "1"))

	records, err := f.commands.List(ctx, models.CommandFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	require.NotNil(t, records[0].Error)
}

func TestSendCommandRecordsValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.SetDevices(lights(time.Now())...)
	require.NoError(t, f.ctrl.Refresh(ctx))

	snap, err := f.ctrl.SendCommand(ctx, "1", dispatch.SetBrightness(128))
	require.NoError(t, err)
	assert.Equal(t, 128, snap.Metadata["brightness"])

	records, err := f.commands.List(ctx, models.CommandFilter{DeviceID: "1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ValueJSON)
	assert.Equal(t, "128", *records[0].ValueJSON)
}

func TestPollFailureKeepsRegistry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.SetDevices(lights(time.Now())...)
	require.NoError(t, f.ctrl.Refresh(ctx))

	f.backend.FailList(http.StatusServiceUnavailable)
	require.Error(t, f.ctrl.Refresh(ctx))
	assert.Len(t, f.ctrl.RegistrySnapshot(time.Now()), 4)
	assert.Len(t, f.events.OfType(events.TypePollFailed), 1)

	f.backend.FailList(0)
	f.backend.SetDevices(lights(time.Now())[:2]...)
	require.NoError(t, f.ctrl.Refresh(ctx))
	assert.Len(t, f.ctrl.RegistrySnapshot(time.Now()), 2)

	removed := f.events.OfType(events.TypeDevicesRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, []string{"3", "4"}, removed[0].Payload.(events.DevicesRemovedPayload).DeviceIDs)
}

func TestPresenceChangeEvents(t *testing.T) {
	base := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	clk := &clock{t: base.Add(30 * time.Second)}
	f := newFixture(t, controller.WithClock(clk.Now))
	ctx := context.Background()

	f.backend.SetDevices(lights(base)[:1]...)
	require.NoError(t, f.ctrl.Refresh(ctx))
	assert.Empty(t, f.events.OfType(events.TypeDevicePresenceChanged))

	refreshed := f.events.OfType(events.TypeRegistryRefreshed)
	require.Len(t, refreshed, 1)
	assert.Equal(t, 1, refreshed[0].Payload.(events.RegistryRefreshedPayload).Online)

	clk.Set(base.Add(60 * time.Second))
	require.NoError(t, f.ctrl.Refresh(ctx))
	assert.Empty(t, f.events.OfType(events.TypeDevicePresenceChanged), "60s is still online")

	clk.Set(base.Add(61 * time.Second))
	require.NoError(t, f.ctrl.Refresh(ctx))
	changes := f.events.OfType(events.TypeDevicePresenceChanged)
	require.Len(t, changes, 1)
	p := changes[0].Payload.(events.PresencePayload)
	assert.Equal(t, "1", p.DeviceID)
	assert.False(t, p.Online)

	f.backend.SetDevices(lights(base.Add(61 * time.Second))[:1]...)
	require.NoError(t, f.ctrl.Refresh(ctx))
	changes = f.events.OfType(events.TypeDevicePresenceChanged)
	require.Len(t, changes, 2)
	assert.True(t, changes[1].Payload.(events.PresencePayload).Online)
}

func TestSubmitTranscript(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.SetDevices(lights(time.Now())...)
	require.NoError(t, f.ctrl.Refresh(ctx))

	res := f.ctrl.SubmitTranscript(ctx, "turn on living room lamp")
	assert.Equal(t, voice.ResultApplied, res.Kind)
	assert.Equal(t, true, state(t, f.ctrl.RegistrySnapshot(time.Now()), "1"))

	res = f.ctrl.SubmitTranscript(ctx, "turn on kitchen")
	assert.Equal(t, voice.ResultDeviceNotFound, res.Kind)

	res = f.ctrl.SubmitTranscript(ctx, "play music")
	assert.Equal(t, voice.ResultUnrecognized, res.Kind)

	history, err := f.transcripts.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "play music", history[0].Text)
	require.NotNil(t, history[2].DeviceID)
	assert.Equal(t, "1", *history[2].DeviceID)
	assert.Len(t, f.events.OfType(events.TypeVoiceResult), 3)
	assert.Len(t, f.backend.Mutations(), 1)
}

func TestVoiceSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.SetDevices(lights(time.Now())...)
	require.NoError(t, f.ctrl.Refresh(ctx))

	assert.Equal(t, voice.StateIdle, f.ctrl.VoiceState())
	_, ok := f.ctrl.DeliverTranscript(ctx, voice.Transcript{Text: "turn on all", Final: true})
	assert.False(t, ok)

	require.True(t, f.ctrl.StartListening())
	res, ok := f.ctrl.DeliverTranscript(ctx, voice.Transcript{Text: "turn on all", Final: true})
	require.True(t, ok)
	assert.Equal(t, voice.ResultApplied, res.Kind)
	assert.Equal(t, []string{"1", "2", "3"}, res.Bulk.Succeeded)
	assert.Equal(t, voice.StateIdle, f.ctrl.VoiceState())

	states := f.events.OfType(events.TypeVoiceStateChanged)
	require.Len(t, states, 2)
	assert.Equal(t, "listening", states[0].Payload.(events.VoiceStatePayload).State)
	assert.Equal(t, "idle", states[1].Payload.(events.VoiceStatePayload).State)
	assert.False(t, f.ctrl.StopListening())
}

func TestDeviceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw, err := f.ctrl.RegisterDevice(ctx, homeapi.Registration{Name: "Garage Light", Type: "light"})
	require.NoError(t, err)
	require.NotNil(t, raw)

	view, ok := f.ctrl.Device("1001", time.Now())
	require.True(t, ok)
	assert.Equal(t, "Garage Light", view.DisplayName)
	assert.False(t, view.Online)

	name := "Garage Lamp"
	require.NoError(t, f.ctrl.EditDevice(ctx, "1001", homeapi.Edit{DeviceName: &name}))
	view, _ = f.ctrl.Device("1001", time.Now())
	assert.Equal(t, "Garage Lamp", view.DisplayName)

	require.NoError(t, f.ctrl.MarkOnline(ctx, "1001"))
	view, _ = f.ctrl.Device("1001", time.Now())
	assert.True(t, view.Online)

	require.NoError(t, f.ctrl.DeleteDevice(ctx, "1001"))
	_, ok = f.ctrl.Device("1001", time.Now())
	assert.False(t, ok)

	assert.ErrorIs(t, f.ctrl.DeleteDevice(ctx, "1001"), dispatch.ErrDeviceNotFound)
	assert.ErrorIs(t, f.ctrl.EditDevice(ctx, "1", homeapi.Edit{}), controller.ErrInvalidRequest)
	_, err = f.ctrl.RegisterDevice(ctx, homeapi.Registration{Name: "x"})
	assert.ErrorIs(t, err, controller.ErrInvalidRequest)
}

func TestDevicesFilterAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	devices := lights(time.Now())
	devices = append(devices, homeapitest.Device("5", "uid-5", "Old Lamp", "light", time.Now().Add(-time.Hour), nil))
	f.backend.SetDevices(devices...)
	require.NoError(t, f.ctrl.Refresh(ctx))

	now := time.Now()
	assert.Len(t, f.ctrl.Devices(controller.Filter{Class: device.ClassLight}, now), 3)

	found := f.ctrl.Devices(controller.Filter{Query: "LAMP"}, now)
	require.Len(t, found, 2)
	assert.Equal(t, "1", found[0].ID)
	assert.Equal(t, "5", found[1].ID)

	st := f.ctrl.Stats(now)
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 4, st.Online)
	assert.Equal(t, 3, st.ByClass[device.ClassLight])
	assert.Equal(t, []device.Class{device.ClassLight, device.ClassSensor, device.ClassSwitch}, f.ctrl.Classes())
}
