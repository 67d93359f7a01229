// Package controller is the application core: it owns the device registry,
// the poller, the command dispatcher and the voice session, and exposes the
// operations the HTTP and WebSocket layers call.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/dispatch"
	"github.com/home-device-controller/backend/internal/events"
	"github.com/home-device-controller/backend/internal/homeapi"
	"github.com/home-device-controller/backend/internal/poller"
	"github.com/home-device-controller/backend/internal/storage/models"
	"github.com/home-device-controller/backend/internal/voice"
)

// Backend is the remote device API. *homeapi.Client implements it.
type Backend interface {
	poller.Lister
	dispatch.Mutator
	RegisterDevice(ctx context.Context, reg homeapi.Registration) (*homeapi.RawDevice, error)
	EditDevice(ctx context.Context, externalUID string, edit homeapi.Edit) error
	DeleteDevice(ctx context.Context, externalUID string) error
	MarkOnline(ctx context.Context, externalUID string) error
	Reachable(ctx context.Context) bool
}

// CommandLog stores the command audit trail.
type CommandLog interface {
	Create(ctx context.Context, rec *models.CommandRecord) error
}

// TranscriptLog stores interpreted transcripts.
type TranscriptLog interface {
	Create(ctx context.Context, rec *models.TranscriptRecord) error
}

// Config holds the core tunables.
type Config struct {
	FallbackName    string
	BulkConcurrency int
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher sends events to pub.
func WithPublisher(pub events.Publisher) Option {
	return func(c *Controller) {
		c.events = events.NewBroadcaster(pub)
	}
}

// WithCommandLog records every command in l.
func WithCommandLog(l CommandLog) Option {
	return func(c *Controller) {
		c.commands = l
	}
}

// WithTranscriptLog records every interpreted transcript in l.
func WithTranscriptLog(l TranscriptLog) Option {
	return func(c *Controller) {
		c.transcripts = l
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller wires the core components together.
type Controller struct {
	api        Backend
	registry   *device.Registry
	poller     *poller.Poller
	dispatcher *dispatch.Dispatcher
	interp     *voice.Interpreter
	session    *voice.Session

	events      *events.Broadcaster
	commands    CommandLog
	transcripts TranscriptLog
	now         func() time.Time
	log         zerolog.Logger

	presenceMu sync.Mutex
	presence   map[string]bool
}

// New builds the core around api.
func New(cfg Config, api Backend, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		registry: device.NewRegistry(log),
		now:      time.Now,
		log:      log.With().Str("component", "controller").Logger(),
		presence: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.poller = poller.New(c.registry, api, log,
		poller.WithFallbackName(cfg.FallbackName),
		poller.WithListener(c),
		poller.WithClock(c.now),
	)
	c.dispatcher = dispatch.New(c.registry, api, log,
		dispatch.WithConcurrency(cfg.BulkConcurrency),
		dispatch.WithObserver(c),
		dispatch.WithClock(c.now),
	)
	c.interp = voice.NewInterpreter(c.registry, c.dispatcher, log, c)
	c.session = voice.NewSession(c.interp, func(s voice.State) {
		c.events.VoiceStateChanged(string(s))
	})
	return c
}

// Poller returns the poller so the caller can schedule it.
func (c *Controller) Poller() *poller.Poller {
	return c.poller
}

// Refresh polls the backend now. It returns poller.ErrPollInFlight if a poll
// is already running.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.poller.PollOnce(ctx)
}

// ToggleDevice switches one device on or off.
func (c *Controller) ToggleDevice(ctx context.Context, id string, desired bool) (device.Snapshot, error) {
	return c.dispatcher.SendCommand(ctx, id, dispatch.Power(desired))
}

// ToggleAll switches every light and switch in the registry on or off.
func (c *Controller) ToggleAll(ctx context.Context, desired bool) dispatch.BulkOutcome {
	snaps := c.registry.List()
	ids := make([]string, 0, len(snaps))
	for _, s := range snaps {
		ids = append(ids, s.ID)
	}
	return c.dispatcher.SendBulk(ctx, ids, desired)
}

// SendCommand sends an arbitrary command to one device.
func (c *Controller) SendCommand(ctx context.Context, id string, cmd dispatch.Command) (device.Snapshot, error) {
	return c.dispatcher.SendCommand(ctx, id, cmd)
}

// SubmitTranscript interprets text immediately, whatever the session state.
func (c *Controller) SubmitTranscript(ctx context.Context, text string) voice.Result {
	return c.interp.Submit(ctx, text)
}

// DeliverTranscript passes a recognition result to the listening session.
// The second result is false when the transcript was ignored.
func (c *Controller) DeliverTranscript(ctx context.Context, tr voice.Transcript) (voice.Result, bool) {
	return c.session.Deliver(ctx, tr)
}

// StartListening moves the voice session to listening.
func (c *Controller) StartListening() bool {
	return c.session.Start()
}

// StopListening moves the voice session to idle.
func (c *Controller) StopListening() bool {
	return c.session.Stop()
}

// VoiceState returns the voice session state.
func (c *Controller) VoiceState() voice.State {
	return c.session.State()
}

// BackendReachable probes the remote API.
func (c *Controller) BackendReachable(ctx context.Context) bool {
	return c.api.Reachable(ctx)
}

// RegisterDevice registers a device with the backend and refreshes the registry.
func (c *Controller) RegisterDevice(ctx context.Context, reg homeapi.Registration) (*homeapi.RawDevice, error) {
	if reg.Name == "" || reg.Type == "" {
		return nil, fmt.Errorf("%w: name and type are required", ErrInvalidRequest)
	}
	raw, err := c.api.RegisterDevice(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}
	c.refreshAfter(ctx, "register")
	return raw, nil
}

// EditDevice renames a device or overrides its status.
func (c *Controller) EditDevice(ctx context.Context, id string, edit homeapi.Edit) error {
	if edit.DeviceName == nil && edit.Status == nil {
		return fmt.Errorf("%w: nothing to change", ErrInvalidRequest)
	}
	return c.lifecycle(ctx, id, "edit", func(uid string) error {
		return c.api.EditDevice(ctx, uid, edit)
	})
}

// DeleteDevice removes a device from the backend.
func (c *Controller) DeleteDevice(ctx context.Context, id string) error {
	return c.lifecycle(ctx, id, "delete", func(uid string) error {
		return c.api.DeleteDevice(ctx, uid)
	})
}

// MarkOnline records a heartbeat for a device.
func (c *Controller) MarkOnline(ctx context.Context, id string) error {
	return c.lifecycle(ctx, id, "online", func(uid string) error {
		return c.api.MarkOnline(ctx, uid)
	})
}

func (c *Controller) lifecycle(ctx context.Context, id, op string, call func(uid string) error) error {
	snap, ok := c.registry.Get(id)
	if !ok {
		return dispatch.ErrDeviceNotFound
	}
	if err := call(snap.ExternalUID); err != nil {
		return fmt.Errorf("%s device %s: %w", op, id, err)
	}
	c.refreshAfter(ctx, op)
	return nil
}

// refreshAfter polls so the registry reflects a lifecycle change. A poll
// already in flight is left to pick it up on the next tick.
func (c *Controller) refreshAfter(ctx context.Context, op string) {
	err := c.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, poller.ErrPollInFlight):
		c.log.Debug().Str("op", op).Msg("poll in flight, change will appear on next poll")
	default:
		c.log.Warn().Err(err).Str("op", op).Msg("refresh after device change failed")
	}
}

