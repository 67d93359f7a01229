package homeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawDevice is a device record as returned by the backend.
type RawDevice struct {
	ID         FlexString   `json:"id"`
	DeviceUID  string       `json:"device_uid"`
	DeviceName string       `json:"device_name,omitempty"`
	Name       string       `json:"name,omitempty"`
	DeviceType string       `json:"device_type"`
	LastSeen   *string      `json:"last_seen,omitempty"`
	Status     string       `json:"status,omitempty"`
	Metadata   FlexMetadata `json:"metadata,omitempty"`
}

// FlexString decodes a JSON string or number into a string. Backends backed
// by SQL tables tend to return numeric ids.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// FlexMetadata decodes metadata given either as an object or as a string
// holding a JSON object. Anything else decodes to an empty map.
type FlexMetadata map[string]any

// UnmarshalJSON implements json.Unmarshaler.
func (m *FlexMetadata) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	out := map[string]any{}

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '{':
		if err := json.Unmarshal(data, &out); err != nil {
			return err
		}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			out = map[string]any{}
		}
	}

	*m = out
	return nil
}

var lastSeenLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

// ParseLastSeen parses a backend heartbeat timestamp. Timestamps without a
// zone are taken as UTC. Numeric values are Unix epoch milliseconds.
func ParseLastSeen(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range lastSeenLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// decodeDeviceList accepts either a bare array or an object with a "devices" array.
func decodeDeviceList(body []byte) ([]RawDevice, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	var devices []RawDevice
	if body[0] == '[' {
		if err := json.Unmarshal(body, &devices); err != nil {
			return nil, fmt.Errorf("decoding device list: %w", err)
		}
		return devices, nil
	}

	var wrapped struct {
		Devices []RawDevice `json:"devices"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding device list: %w", err)
	}
	return wrapped.Devices, nil
}

// decodeDevice extracts a device from a mutation response, which may be the
// device itself or an object wrapping it under "device". It returns nil when
// the body carries no recognizable device.
func decodeDevice(body []byte) *RawDevice {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil
	}

	var wrapped struct {
		Device *RawDevice `json:"device"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Device != nil {
		return wrapped.Device
	}

	var d RawDevice
	if err := json.Unmarshal(body, &d); err != nil || (d.ID == "" && d.DeviceUID == "") {
		return nil
	}
	return &d
}
