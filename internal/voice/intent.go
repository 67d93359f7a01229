// Package voice turns spoken transcripts into device commands.
package voice

import (
	"strings"

	"github.com/home-device-controller/backend/internal/device"
)

// IntentKind tags an Intent.
type IntentKind string

const (
	IntentDevice       IntentKind = "device"
	IntentAll          IntentKind = "all"
	IntentUnrecognized IntentKind = "unrecognized"
)

// Intent is the structured meaning of a transcript.
type Intent struct {
	Kind       IntentKind `json:"kind"`
	TargetName string     `json:"target_name,omitempty"`
	TurnOn     bool       `json:"turn_on"`
}

const (
	phraseOn     = "turn on"
	phraseOff    = "turn off"
	phraseAllOn  = "turn on all"
	phraseAllOff = "turn off all"
	shortAllOn   = "all on"
	shortAllOff  = "all off"
)

// Classify interprets a transcript. Matching is by substring on the
// lower-cased text and the first rule that matches wins: fleet-wide on, fleet-wide
// off, single device on, single device off. The device name is whatever
// follows the first "turn on" or "turn off".
func Classify(text string) Intent {
	t := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.Contains(t, phraseAllOn) || strings.Contains(t, shortAllOn):
		return Intent{Kind: IntentAll, TurnOn: true}
	case strings.Contains(t, phraseAllOff) || strings.Contains(t, shortAllOff):
		return Intent{Kind: IntentAll, TurnOn: false}
	case strings.Contains(t, phraseOn):
		return Intent{Kind: IntentDevice, TargetName: after(t, phraseOn), TurnOn: true}
	case strings.Contains(t, phraseOff):
		return Intent{Kind: IntentDevice, TargetName: after(t, phraseOff), TurnOn: false}
	default:
		return Intent{Kind: IntentUnrecognized}
	}
}

func after(s, phrase string) string {
	_, rest, _ := strings.Cut(s, phrase)
	return strings.TrimSpace(rest)
}

// Resolve finds the device a spoken name refers to. A device matches when
// either name contains the other, ignoring case. The first match in the given
// order wins, so an empty candidate resolves to the first named device.
func Resolve(candidate string, devices []device.Snapshot) (device.Snapshot, bool) {
	c := strings.ToLower(strings.TrimSpace(candidate))
	for _, d := range devices {
		name := strings.ToLower(strings.TrimSpace(d.DisplayName))
		if name == "" {
			continue
		}
		if strings.Contains(name, c) || strings.Contains(c, name) {
			return d, true
		}
	}
	return device.Snapshot{}, false
}
