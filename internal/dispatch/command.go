package dispatch

import (
	"fmt"
	"maps"
	"math"

	"github.com/home-device-controller/backend/internal/device"
)

// CommandKind names a device command.
type CommandKind string

const (
	KindTurnOn         CommandKind = "turn_on"
	KindTurnOff        CommandKind = "turn_off"
	KindSetBrightness  CommandKind = "set_brightness"
	KindSetTemperature CommandKind = "set_temperature"
	KindPatch          CommandKind = "patch"
)

// MaxBrightness is the top of the brightness scale.
const MaxBrightness = 255

// Command is a requested change to one device.
type Command struct {
	Kind  CommandKind
	Value float64
	Patch map[string]any
}

func TurnOn() Command  { return Command{Kind: KindTurnOn} }
func TurnOff() Command { return Command{Kind: KindTurnOff} }

// Power returns TurnOn or TurnOff.
func Power(on bool) Command {
	if on {
		return TurnOn()
	}
	return TurnOff()
}

func SetBrightness(v int) Command {
	return Command{Kind: KindSetBrightness, Value: float64(v)}
}

func SetTemperature(v float64) Command {
	return Command{Kind: KindSetTemperature, Value: v}
}

// Patch merges arbitrary metadata fields into the device.
func Patch(fields map[string]any) Command {
	return Command{Kind: KindPatch, Patch: fields}
}

// ParseCommand builds a command from its wire form. value is ignored for
// turn_on/turn_off, a number for set_*, and an object for patch.
func ParseCommand(kind string, value any) (Command, error) {
	var cmd Command
	switch k := CommandKind(kind); k {
	case KindTurnOn, KindTurnOff:
		cmd = Command{Kind: k}
	case KindSetBrightness, KindSetTemperature:
		n, ok := value.(float64)
		if !ok {
			return Command{}, fmt.Errorf("%w: %s needs a numeric value", ErrInvalidCommand, k)
		}
		cmd = Command{Kind: k, Value: n}
	case KindPatch:
		fields, ok := value.(map[string]any)
		if !ok {
			return Command{}, fmt.Errorf("%w: patch needs an object value", ErrInvalidCommand)
		}
		cmd = Patch(fields)
	default:
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, kind)
	}
	return cmd, cmd.Validate()
}

// Validate checks the command's value.
func (c Command) Validate() error {
	switch c.Kind {
	case KindTurnOn, KindTurnOff:
		return nil
	case KindSetBrightness:
		if c.Value != math.Trunc(c.Value) || c.Value < 0 || c.Value > MaxBrightness {
			return fmt.Errorf("%w: brightness must be an integer in 0..%d", ErrInvalidCommand, MaxBrightness)
		}
		return nil
	case KindSetTemperature:
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			return fmt.Errorf("%w: temperature must be a finite number", ErrInvalidCommand)
		}
		return nil
	case KindPatch:
		if len(c.Patch) == 0 {
			return fmt.Errorf("%w: empty patch", ErrInvalidCommand)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, c.Kind)
	}
}

// ImpliedPatch is the metadata change a successful command implies.
func (c Command) ImpliedPatch() map[string]any {
	switch c.Kind {
	case KindTurnOn:
		return map[string]any{device.MetaState: true}
	case KindTurnOff:
		return map[string]any{device.MetaState: false}
	case KindSetBrightness:
		return map[string]any{device.MetaBrightness: int(c.Value)}
	case KindSetTemperature:
		return map[string]any{device.MetaTargetTemperature: c.Value}
	case KindPatch:
		return maps.Clone(c.Patch)
	default:
		return nil
	}
}

func (c Command) String() string {
	return string(c.Kind)
}
