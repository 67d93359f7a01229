package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		value   any
		want    Command
		wantErr bool
	}{
		{name: "turn on", kind: "turn_on", want: TurnOn()},
		{name: "turn off ignores value", kind: "turn_off", value: 3.0, want: TurnOff()},
		{name: "brightness", kind: "set_brightness", value: 200.0, want: SetBrightness(200)},
		{name: "brightness out of range", kind: "set_brightness", value: 256.0, wantErr: true},
		{name: "brightness fractional", kind: "set_brightness", value: 1.5, wantErr: true},
		{name: "brightness not a number", kind: "set_brightness", value: "high", wantErr: true},
		{name: "temperature", kind: "set_temperature", value: 22.5, want: SetTemperature(22.5)},
		{name: "patch", kind: "patch", value: map[string]any{"unit": "C"}, want: Patch(map[string]any{"unit": "C"})},
		{name: "empty patch", kind: "patch", value: map[string]any{}, wantErr: true},
		{name: "unknown", kind: "explode", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.kind, tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPower(t *testing.T) {
	assert.Equal(t, map[string]any{"state": true}, Power(true).ImpliedPatch())
	assert.Equal(t, map[string]any{"state": false}, Power(false).ImpliedPatch())
}

func TestPatchIsCopied(t *testing.T) {
	fields := map[string]any{"a": 1}
	p := Patch(fields).ImpliedPatch()
	p["a"] = 2
	assert.Equal(t, 1, fields["a"])
}
