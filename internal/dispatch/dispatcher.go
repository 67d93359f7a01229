// Package dispatch sends device commands to the backend and applies the
// confirmed changes to the registry.
package dispatch

import (
	"context"
	"errors"
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/homeapi"
	"github.com/home-device-controller/backend/internal/metrics"
)

// Mutator writes device metadata to the backend. *homeapi.Client implements it.
type Mutator interface {
	MutateDevice(ctx context.Context, externalUID string, metadata map[string]any) (*homeapi.RawDevice, error)
}

// Result describes one completed command, successful or not.
type Result struct {
	DeviceID    string
	ExternalUID string
	Command     Command
	// Snapshot is the device after the optimistic patch. Zero on failure.
	Snapshot device.Snapshot
	Err      error
	BulkID   string
	At       time.Time
}

// Failure is a device a bulk command could not be applied to.
type Failure struct {
	DeviceID string `json:"device_id"`
	Reason   string `json:"reason"`
}

// BulkOutcome partitions the devices a bulk command targeted. Both lists keep
// the order the ids were given in.
type BulkOutcome struct {
	BulkID    string    `json:"bulk_id"`
	TurnOn    bool      `json:"turn_on"`
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// Attempted returns the number of devices the command was sent to or rejected for.
func (b BulkOutcome) Attempted() int {
	return len(b.Succeeded) + len(b.Failed)
}

// Observer is told about every completed command.
type Observer interface {
	CommandCompleted(ctx context.Context, r Result)
	BulkCompleted(ctx context.Context, b BulkOutcome)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithConcurrency caps the requests a bulk command has in flight. Zero or
// less means no cap.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.SetConcurrency(n)
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// WithClock overrides time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// Dispatcher issues single-device and bulk commands.
type Dispatcher struct {
	registry  *device.Registry
	api       Mutator
	observers []Observer
	limit     atomic.Int64
	now       func() time.Time
	log       zerolog.Logger
}

// New creates a dispatcher writing through api and patching registry.
func New(registry *device.Registry, api Mutator, log zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		api:      api,
		now:      time.Now,
		log:      log.With().Str("component", "dispatch").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetConcurrency changes the cap applied to later bulk commands. Zero or less
// removes it.
func (d *Dispatcher) SetConcurrency(n int) {
	d.limit.Store(int64(max(n, 0)))
}

// SendCommand sends cmd to one device. On success the implied patch has been
// applied to the registry and the patched snapshot is returned. On failure the
// registry is untouched.
func (d *Dispatcher) SendCommand(ctx context.Context, deviceID string, cmd Command) (device.Snapshot, error) {
	if err := cmd.Validate(); err != nil {
		return device.Snapshot{}, err
	}

	snap, ok := d.registry.Get(deviceID)
	if !ok {
		return device.Snapshot{}, ErrDeviceNotFound
	}

	res := d.send(ctx, snap, cmd, "")
	if res.Err != nil {
		return device.Snapshot{}, res.Err
	}
	return res.Snapshot, nil
}

// SendBulk turns every switch and light among ids on or off. Requests run
// concurrently and a failure affects only its own device. Devices of other
// classes are skipped without being reported; unknown ids are reported as
// failed. Repeated ids are sent once.
func (d *Dispatcher) SendBulk(ctx context.Context, ids []string, turnOn bool) BulkOutcome {
	cmd := Power(turnOn)
	outcome := BulkOutcome{
		BulkID:    uuid.NewString(),
		TurnOn:    turnOn,
		Succeeded: []string{},
		Failed:    []Failure{},
	}

	type slot struct {
		id   string
		snap device.Snapshot
		err  error
	}
	slots := make([]slot, 0, len(ids))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		snap, ok := d.registry.Get(id)
		switch {
		case !ok:
			slots = append(slots, slot{id: id, err: ErrDeviceNotFound})
		case snap.Class.Switchable():
			slots = append(slots, slot{id: id, snap: snap})
		}
	}

	var g errgroup.Group
	if n := d.limit.Load(); n > 0 {
		g.SetLimit(int(n))
	}
	for i := range slots {
		if slots[i].err != nil {
			continue
		}
		g.Go(func() error {
			// Errors are recorded per device.
			slots[i].err = d.send(ctx, slots[i].snap, cmd, outcome.BulkID).Err
			return nil
		})
	}
	g.Wait()

	for _, s := range slots {
		if s.err != nil {
			outcome.Failed = append(outcome.Failed, Failure{DeviceID: s.id, Reason: failureReason(s.err)})
			continue
		}
		outcome.Succeeded = append(outcome.Succeeded, s.id)
	}

	d.log.Info().
		Str("bulk_id", outcome.BulkID).
		Bool("turn_on", turnOn).
		Int("succeeded", len(outcome.Succeeded)).
		Int("failed", len(outcome.Failed)).
		Msg("bulk command finished")

	for _, o := range d.observers {
		o.BulkCompleted(ctx, outcome)
	}
	return outcome
}

// send performs one mutation and reports it. The backend replaces the stored
// metadata object, so the full merged map is sent.
func (d *Dispatcher) send(ctx context.Context, snap device.Snapshot, cmd Command, bulkID string) Result {
	patch := cmd.ImpliedPatch()
	merged := make(map[string]any, len(snap.Metadata)+len(patch))
	maps.Copy(merged, snap.Metadata)
	maps.Copy(merged, patch)

	res := Result{
		DeviceID:    snap.ID,
		ExternalUID: snap.ExternalUID,
		Command:     cmd,
		BulkID:      bulkID,
	}

	_, err := d.api.MutateDevice(ctx, snap.ExternalUID, merged)
	res.At = d.now()
	if err != nil {
		res.Err = &CommandError{DeviceID: snap.ID, Command: cmd.Kind, Err: err}
		d.log.Warn().Err(err).
			Str("device_id", snap.ID).
			Str("command", cmd.String()).
			Msg("command failed")
	} else {
		updated, ok := d.registry.ApplyOptimisticPatch(snap.ID, patch)
		if !ok {
			// Removed by a poll while the request was in flight.
			updated = snap.Clone()
			updated.Metadata = merged
			d.log.Debug().Str("device_id", snap.ID).Msg("device left registry before patch")
		}
		res.Snapshot = updated
	}

	metrics.ObserveCommand(cmd.String(), res.Err == nil)
	for _, o := range d.observers {
		o.CommandCompleted(ctx, res)
	}
	return res
}

func failureReason(err error) string {
	if errors.Is(err, ErrDeviceNotFound) {
		return ErrDeviceNotFound.Error()
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Err.Error()
	}
	return err.Error()
}
