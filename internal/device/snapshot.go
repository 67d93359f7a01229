// Package device holds the cached view of the device fleet: the Snapshot value
// type, the presence rule and the in-memory Registry.
package device

import (
	"maps"
	"time"
)

// Class identifies which controls and metadata fields are meaningful for a device.
type Class string

const (
	ClassLight       Class = "light"
	ClassSwitch      Class = "switch"
	ClassSensor      Class = "sensor"
	ClassThermostat  Class = "thermostat"
	ClassSmartButton Class = "smartButton"
	ClassOther       Class = "other"
)

// ParseClass maps a backend device type tag to a Class. Unknown tags become ClassOther.
func ParseClass(tag string) Class {
	switch c := Class(tag); c {
	case ClassLight, ClassSwitch, ClassSensor, ClassThermostat, ClassSmartButton:
		return c
	default:
		return ClassOther
	}
}

// Switchable reports whether the class has on/off semantics and takes part in
// bulk power commands.
func (c Class) Switchable() bool {
	return c == ClassLight || c == ClassSwitch
}

// Well-known metadata keys.
const (
	MetaState             = "state"
	MetaBrightness        = "brightness"
	MetaTemperature       = "temperature"
	MetaTargetTemperature = "targetTemperature"
	MetaValue             = "value"
	MetaUnit              = "unit"
	MetaBatteryLevel      = "batteryLevel"
)

// Snapshot is the last known state of one device.
type Snapshot struct {
	ID          string         `json:"id"`
	ExternalUID string         `json:"external_uid"`
	DisplayName string         `json:"display_name"`
	Class       Class          `json:"class"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
	Status      string         `json:"status,omitempty"`
	Metadata    map[string]any `json:"metadata"`
}

// Clone returns a copy whose Metadata map can be modified without affecting s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Metadata = make(map[string]any, len(s.Metadata))
	maps.Copy(out.Metadata, s.Metadata)
	return out
}

// State returns the metadata "state" flag. The second result is false when the
// device does not report a boolean state.
func (s Snapshot) State() (on bool, ok bool) {
	on, ok = s.Metadata[MetaState].(bool)
	return on, ok
}

// HasHeartbeat reports whether a last-seen timestamp is known.
func (s Snapshot) HasHeartbeat() bool {
	return !s.LastSeenAt.IsZero()
}
