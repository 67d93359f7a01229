package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/dispatch"
	"github.com/home-device-controller/backend/internal/events"
	"github.com/home-device-controller/backend/internal/poller"
	"github.com/home-device-controller/backend/internal/storage/models"
	"github.com/home-device-controller/backend/internal/voice"
)

var (
	_ poller.Listener   = (*Controller)(nil)
	_ dispatch.Observer = (*Controller)(nil)
	_ voice.Observer    = (*Controller)(nil)
)

// PollSucceeded publishes presence transitions and the refreshed totals.
func (c *Controller) PollSucceeded(_ context.Context, r poller.Report) {
	online := 0
	var changed []device.Snapshot
	var states []bool

	c.presenceMu.Lock()
	for _, id := range r.Reconciliation.Removed {
		delete(c.presence, id)
	}
	for _, s := range r.Devices {
		now := device.IsOnline(s, r.At)
		if now {
			online++
		}
		prev, known := c.presence[s.ID]
		c.presence[s.ID] = now
		if known && prev != now {
			changed = append(changed, s)
			states = append(states, now)
		}
	}
	c.presenceMu.Unlock()

	for i, s := range changed {
		c.log.Info().Str("device_id", s.ID).Bool("online", states[i]).Msg("presence changed")
		c.events.PresenceChanged(s, states[i])
	}
	c.events.DevicesRemoved(r.Reconciliation.Removed)
	c.events.RegistryRefreshed(len(r.Devices), online,
		len(r.Reconciliation.Added), len(r.Reconciliation.Removed), r.At)
}

// PollFailed publishes the failure. The registry keeps its devices.
func (c *Controller) PollFailed(_ context.Context, err error) {
	c.events.PollFailed(err)
}

// CommandCompleted audits the command and publishes its outcome.
func (c *Controller) CommandCompleted(ctx context.Context, r dispatch.Result) {
	payload := events.CommandPayload{
		DeviceID: r.DeviceID,
		Command:  r.Command.String(),
		Success:  r.Err == nil,
		BulkID:   r.BulkID,
	}
	if r.Err != nil {
		payload.Error = r.Err.Error()
	}
	c.events.CommandCompleted(payload)
	if r.Err == nil {
		c.events.DeviceStateChanged(r.Snapshot, r.Command.String())
	}

	if c.commands == nil {
		return
	}
	rec := &models.CommandRecord{
		DeviceID:    r.DeviceID,
		ExternalUID: r.ExternalUID,
		Command:     r.Command.String(),
		ValueJSON:   commandValue(r.Command),
		Success:     r.Err == nil,
		CreatedAt:   r.At.UTC(),
	}
	if r.Err != nil {
		msg := r.Err.Error()
		rec.Error = &msg
	}
	if r.BulkID != "" {
		id := r.BulkID
		rec.BulkID = &id
	}
	if err := c.commands.Create(context.WithoutCancel(ctx), rec); err != nil {
		c.log.Warn().Err(err).Str("device_id", r.DeviceID).Msg("recording command failed")
	}
}

// BulkCompleted publishes the bulk outcome and warns when devices failed.
func (c *Controller) BulkCompleted(_ context.Context, b dispatch.BulkOutcome) {
	failed := make([]events.BulkFailurePayload, 0, len(b.Failed))
	for _, f := range b.Failed {
		failed = append(failed, events.BulkFailurePayload{DeviceID: f.DeviceID, Reason: f.Reason})
	}
	c.events.BulkCompleted(events.BulkPayload{
		BulkID:    b.BulkID,
		TurnOn:    b.TurnOn,
		Succeeded: b.Succeeded,
		Failed:    failed,
	})
	if len(b.Failed) > 0 {
		c.events.Notification("warning", "Some devices did not respond",
			fmt.Sprintf("%d of %d devices failed", len(b.Failed), b.Attempted()))
	}
}

// VoiceResult records the transcript and publishes the result.
func (c *Controller) VoiceResult(ctx context.Context, r voice.Result) {
	payload := events.VoiceResultPayload{
		Transcript: r.Transcript,
		Kind:       string(r.Kind),
		TargetName: r.Intent.TargetName,
		Message:    r.Message,
	}
	if r.Device != nil {
		payload.DeviceID = r.Device.ID
	}
	c.events.VoiceResult(payload)

	if c.transcripts == nil {
		return
	}
	rec := &models.TranscriptRecord{
		Text:       r.Transcript,
		IntentKind: string(r.Intent.Kind),
		TurnOn:     r.Intent.TurnOn,
		ResultKind: string(r.Kind),
		Message:    r.Message,
		CreatedAt:  c.now().UTC(),
	}
	if r.Intent.TargetName != "" {
		name := r.Intent.TargetName
		rec.TargetName = &name
	}
	if payload.DeviceID != "" {
		id := payload.DeviceID
		rec.DeviceID = &id
	}
	if err := c.transcripts.Create(context.WithoutCancel(ctx), rec); err != nil {
		c.log.Warn().Err(err).Msg("recording transcript failed")
	}
}

func commandValue(cmd dispatch.Command) *string {
	var v any
	switch cmd.Kind {
	case dispatch.KindSetBrightness, dispatch.KindSetTemperature:
		v = cmd.Value
	case dispatch.KindPatch:
		v = cmd.Patch
	default:
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
