package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/dispatch"
	"github.com/home-device-controller/backend/internal/metrics"
)

// ResultKind is the outcome of a submitted transcript.
type ResultKind string

const (
	ResultApplied        ResultKind = "applied"
	ResultUnrecognized   ResultKind = "unrecognized"
	ResultDeviceNotFound ResultKind = "device-not-found"
	ResultDispatchFailed ResultKind = "dispatch-failed"
)

// Result reports what happened to a transcript.
type Result struct {
	Transcript string                `json:"transcript"`
	Kind       ResultKind            `json:"kind"`
	Intent     Intent                `json:"intent"`
	Device     *device.Snapshot      `json:"device,omitempty"`
	Bulk       *dispatch.BulkOutcome `json:"bulk,omitempty"`
	Error      string                `json:"error,omitempty"`
	Message    string                `json:"message"`
}

// Dispatcher executes resolved intents. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	SendCommand(ctx context.Context, deviceID string, cmd dispatch.Command) (device.Snapshot, error)
	SendBulk(ctx context.Context, ids []string, turnOn bool) dispatch.BulkOutcome
}

// DeviceLister supplies devices in resolution order. *device.Registry implements it.
type DeviceLister interface {
	List() []device.Snapshot
}

// Observer is told about every interpreted transcript.
type Observer interface {
	VoiceResult(ctx context.Context, r Result)
}

// Interpreter classifies transcripts and forwards them to the dispatcher.
type Interpreter struct {
	devices    DeviceLister
	dispatcher Dispatcher
	observers  []Observer
	log        zerolog.Logger
}

// NewInterpreter creates an interpreter.
func NewInterpreter(devices DeviceLister, dispatcher Dispatcher, log zerolog.Logger, observers ...Observer) *Interpreter {
	return &Interpreter{
		devices:    devices,
		dispatcher: dispatcher,
		observers:  observers,
		log:        log.With().Str("component", "voice").Logger(),
	}
}

// Submit interprets one final transcript. Unrecognized transcripts and unknown
// device names never reach the dispatcher.
func (i *Interpreter) Submit(ctx context.Context, text string) Result {
	intent := Classify(text)
	res := Result{
		Transcript: strings.TrimSpace(text),
		Intent:     intent,
	}

	switch intent.Kind {
	case IntentAll:
		var ids []string
		for _, d := range i.devices.List() {
			ids = append(ids, d.ID)
		}
		outcome := i.dispatcher.SendBulk(ctx, ids, intent.TurnOn)
		res.Kind = ResultApplied
		res.Bulk = &outcome
		res.Message = bulkMessage(outcome)

	case IntentDevice:
		target, ok := Resolve(intent.TargetName, i.devices.List())
		if !ok {
			res.Kind = ResultDeviceNotFound
			res.Message = fmt.Sprintf("Device %q not found", intent.TargetName)
			break
		}
		updated, err := i.dispatcher.SendCommand(ctx, target.ID, dispatch.Power(intent.TurnOn))
		if err != nil {
			res.Kind = ResultDispatchFailed
			res.Device = &target
			res.Error = err.Error()
			res.Message = fmt.Sprintf("Failed to %s %s", verb(intent.TurnOn), target.DisplayName)
			break
		}
		res.Kind = ResultApplied
		res.Device = &updated
		res.Message = fmt.Sprintf("%s %s", pastVerb(intent.TurnOn), updated.DisplayName)

	default:
		res.Kind = ResultUnrecognized
		res.Message = "Command not recognized"
	}

	i.log.Info().
		Str("transcript", res.Transcript).
		Str("result", string(res.Kind)).
		Str("target", intent.TargetName).
		Msg("voice command")
	metrics.ObserveVoice(string(res.Kind))

	for _, o := range i.observers {
		o.VoiceResult(ctx, res)
	}
	return res
}

func verb(on bool) string {
	if on {
		return "turn on"
	}
	return "turn off"
}

func pastVerb(on bool) string {
	if on {
		return "Turned on"
	}
	return "Turned off"
}

func bulkMessage(b dispatch.BulkOutcome) string {
	dir := "off"
	if b.TurnOn {
		dir = "on"
	}
	total := b.Attempted()
	if total == 0 {
		return fmt.Sprintf("No devices to turn %s", dir)
	}
	return fmt.Sprintf("Turned %s %d of %d devices", dir, len(b.Succeeded), total)
}
