package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/home-device-controller/backend/internal/device"
)

func TestMessageJSONEnvelope(t *testing.T) {
	msg := NewMessage(TypePollFailed, PollFailedPayload{Error: "boom"})
	data, err := msg.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "poll.failed", decoded["type"])
	assert.NotEmpty(t, decoded["timestamp"])
	assert.Equal(t, map[string]any{"error": "boom"}, decoded["payload"])
}

func TestFanoutPublishesToAll(t *testing.T) {
	var a, b Recorder
	calls := 0
	f := NewFanout(&a, nil, PublisherFunc(func(Message) { calls++ }))
	f.Add(&b)

	f.Publish(NewMessage(TypePong, nil))

	assert.Len(t, a.Messages(), 1)
	assert.Len(t, b.Messages(), 1)
	assert.Equal(t, 1, calls)
}

func TestBroadcasterPayloads(t *testing.T) {
	var rec Recorder
	b := NewBroadcaster(&rec)

	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lamp := device.Snapshot{ID: "1", DisplayName: "Lamp", Class: device.ClassLight, LastSeenAt: seen}

	b.PresenceChanged(lamp, true)
	b.PresenceChanged(device.Snapshot{ID: "2"}, false)
	b.DevicesRemoved(nil)
	b.DevicesRemoved([]string{"3"})
	b.PollFailed(errors.New("down"))
	b.BulkCompleted(BulkPayload{BulkID: "x"})

	presence := rec.OfType(TypeDevicePresenceChanged)
	require.Len(t, presence, 2)
	p := presence[0].Payload.(PresencePayload)
	require.NotNil(t, p.LastSeenAt)
	assert.True(t, seen.Equal(*p.LastSeenAt))
	assert.Nil(t, presence[1].Payload.(PresencePayload).LastSeenAt)

	assert.Len(t, rec.OfType(TypeDevicesRemoved), 1)
	assert.Len(t, rec.OfType(TypePollFailed), 1)

	bulk := rec.OfType(TypeBulkCompleted)[0].Payload.(BulkPayload)
	assert.NotNil(t, bulk.Succeeded)
	assert.NotNil(t, bulk.Failed)
}

func TestNilBroadcasterIsSafe(t *testing.T) {
	var b *Broadcaster
	assert.NotPanics(t, func() { b.Notification("info", "t", "m") })
}

func TestTranscriptFinalDefault(t *testing.T) {
	var p TranscriptPayload
	require.NoError(t, json.Unmarshal([]byte(`{"text":"turn on lamp"}`), &p))
	assert.True(t, p.IsFinal())

	require.NoError(t, json.Unmarshal([]byte(`{"text":"turn","final":false}`), &p))
	assert.False(t, p.IsFinal())
}
