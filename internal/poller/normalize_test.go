package poller

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/homeapi"
)

func TestNormalize(t *testing.T) {
	bad := "soon"
	raws := []homeapi.RawDevice{
		{ID: "1", DeviceUID: "u1", Name: "Hall", DeviceType: "switch"},
		{DeviceUID: "u2", DeviceName: "  Porch  ", DeviceType: "light"},
		{ID: "3", DeviceType: "gizmo", LastSeen: &bad},
		{DeviceType: "light"},
	}

	snaps, stats := Normalize(raws, "", zerolog.Nop())
	require.Len(t, snaps, 3)

	assert.Equal(t, "Hall", snaps[0].DisplayName)
	assert.Equal(t, "u1", snaps[0].ExternalUID)

	assert.Equal(t, "u2", snaps[1].ID)
	assert.Equal(t, "Porch", snaps[1].DisplayName)

	assert.Equal(t, "3", snaps[2].ExternalUID)
	assert.Equal(t, device.ClassOther, snaps[2].Class)
	assert.Equal(t, DefaultFallbackName, snaps[2].DisplayName)
	assert.True(t, snaps[2].LastSeenAt.IsZero())
	assert.NotNil(t, snaps[2].Metadata)

	assert.Equal(t, Anomalies{MissingID: 1, MissingName: 1, BadTimestamp: 1, MissingTimestamp: 2}, stats)
}

func TestNormalizeCustomFallbackAndTimestamp(t *testing.T) {
	ts := "2026-02-03T04:05:06Z"
	snaps, _ := Normalize([]homeapi.RawDevice{{ID: "9", LastSeen: &ts}}, "Mystery", zerolog.Nop())
	require.Len(t, snaps, 1)
	assert.Equal(t, "Mystery", snaps[0].DisplayName)
	assert.True(t, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC).Equal(snaps[0].LastSeenAt))
}
