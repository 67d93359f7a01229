package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsOnline(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastSeen time.Time
		want     bool
	}{
		{name: "59 seconds ago", lastSeen: now.Add(-59 * time.Second), want: true},
		{name: "exactly at threshold", lastSeen: now.Add(-StalenessThreshold), want: true},
		{name: "just past threshold", lastSeen: now.Add(-StalenessThreshold - time.Nanosecond), want: false},
		{name: "61 seconds ago", lastSeen: now.Add(-61 * time.Second), want: false},
		{name: "no heartbeat", lastSeen: time.Time{}, want: false},
		{name: "clock skew into the future", lastSeen: now.Add(5 * time.Second), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{ID: "d1", LastSeenAt: tt.lastSeen}
			assert.Equal(t, tt.want, IsOnline(s, now))
		})
	}
}

func TestCountOnline(t *testing.T) {
	now := time.Now()
	snaps := []Snapshot{
		{ID: "a", LastSeenAt: now.Add(-10 * time.Second)},
		{ID: "b", LastSeenAt: now.Add(-2 * time.Minute)},
		{ID: "c"},
		{ID: "d", LastSeenAt: now},
	}

	assert.Equal(t, 2, CountOnline(snaps, now))
}

func TestParseClass(t *testing.T) {
	assert.Equal(t, ClassSmartButton, ParseClass("smartButton"))
	assert.Equal(t, ClassLight, ParseClass("light"))
	assert.Equal(t, ClassOther, ParseClass("camera"))
	assert.Equal(t, ClassOther, ParseClass(""))

	assert.True(t, ClassSwitch.Switchable())
	assert.True(t, ClassLight.Switchable())
	assert.False(t, ClassSensor.Switchable())
	assert.False(t, ClassThermostat.Switchable())
}
