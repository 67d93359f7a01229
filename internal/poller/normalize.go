package poller

import (
	"maps"
	"strings"

	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/homeapi"
)

// DefaultFallbackName is shown for devices the backend reports without a name.
const DefaultFallbackName = "Unnamed Device"

// Anomalies counts malformed records seen while normalizing one poll.
type Anomalies struct {
	MissingID        int
	MissingName      int
	BadTimestamp     int
	MissingTimestamp int
}

// Normalize converts backend records to snapshots, keeping their order.
// Records without any id are dropped. A bad or missing last_seen becomes the
// zero time, which reads as offline.
func Normalize(raws []homeapi.RawDevice, fallbackName string, log zerolog.Logger) ([]device.Snapshot, Anomalies) {
	if fallbackName == "" {
		fallbackName = DefaultFallbackName
	}

	var stats Anomalies
	out := make([]device.Snapshot, 0, len(raws))

	for _, raw := range raws {
		id := strings.TrimSpace(string(raw.ID))
		uid := strings.TrimSpace(raw.DeviceUID)
		if id == "" {
			id = uid
		}
		if id == "" {
			stats.MissingID++
			log.Warn().Str("name", raw.DeviceName).Msg("device without id, skipping")
			continue
		}
		if uid == "" {
			uid = id
		}

		name, named := displayName(raw)
		if !named {
			name = fallbackName
			stats.MissingName++
		}

		s := device.Snapshot{
			ID:          id,
			ExternalUID: uid,
			DisplayName: name,
			Class:       device.ParseClass(raw.DeviceType),
			Status:      raw.Status,
			Metadata:    make(map[string]any, len(raw.Metadata)),
		}
		maps.Copy(s.Metadata, raw.Metadata)

		switch {
		case raw.LastSeen == nil || strings.TrimSpace(*raw.LastSeen) == "":
			stats.MissingTimestamp++
		default:
			t, ok := homeapi.ParseLastSeen(*raw.LastSeen)
			if !ok {
				stats.BadTimestamp++
				log.Warn().Str("device_id", id).Str("last_seen", *raw.LastSeen).Msg("unparseable last_seen")
				break
			}
			s.LastSeenAt = t
		}

		out = append(out, s)
	}
	return out, stats
}

// displayName prefers device_name over name.
func displayName(raw homeapi.RawDevice) (string, bool) {
	if n := strings.TrimSpace(raw.DeviceName); n != "" {
		return n, true
	}
	if n := strings.TrimSpace(raw.Name); n != "" {
		return n, true
	}
	return "", false
}
