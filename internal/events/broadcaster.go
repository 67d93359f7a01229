package events

import (
	"time"

	"github.com/home-device-controller/backend/internal/device"
)

// Broadcaster builds typed events and hands them to a Publisher.
type Broadcaster struct {
	pub Publisher
}

// NewBroadcaster creates a broadcaster publishing to pub.
func NewBroadcaster(pub Publisher) *Broadcaster {
	return &Broadcaster{pub: pub}
}

// DeviceStateChanged sends a device.state_changed event for a confirmed command.
func (b *Broadcaster) DeviceStateChanged(s device.Snapshot, command string) {
	b.publish(TypeDeviceStateChanged, DeviceStatePayload{
		DeviceID:    s.ID,
		DisplayName: s.DisplayName,
		Class:       string(s.Class),
		Metadata:    s.Metadata,
		Command:     command,
	})
}

// PresenceChanged sends a device.presence_changed event.
func (b *Broadcaster) PresenceChanged(s device.Snapshot, online bool) {
	payload := PresencePayload{
		DeviceID:    s.ID,
		DisplayName: s.DisplayName,
		Online:      online,
	}
	if s.HasHeartbeat() {
		last := s.LastSeenAt.UTC()
		payload.LastSeenAt = &last
	}
	b.publish(TypeDevicePresenceChanged, payload)
}

// DevicesRemoved sends a devices.removed event. Empty lists are not sent.
func (b *Broadcaster) DevicesRemoved(ids []string) {
	if len(ids) == 0 {
		return
	}
	b.publish(TypeDevicesRemoved, DevicesRemovedPayload{DeviceIDs: ids})
}

// RegistryRefreshed sends a registry.refreshed event after a successful poll.
func (b *Broadcaster) RegistryRefreshed(total, online, added, removed int, polledAt time.Time) {
	b.publish(TypeRegistryRefreshed, RegistryRefreshedPayload{
		Total:    total,
		Online:   online,
		Added:    added,
		Removed:  removed,
		PolledAt: polledAt.UTC(),
	})
}

// PollFailed sends a poll.failed event.
func (b *Broadcaster) PollFailed(err error) {
	b.publish(TypePollFailed, PollFailedPayload{Error: err.Error()})
}

// CommandCompleted sends a command.completed event.
func (b *Broadcaster) CommandCompleted(p CommandPayload) {
	b.publish(TypeCommandCompleted, p)
}

// BulkCompleted sends a bulk.completed event.
func (b *Broadcaster) BulkCompleted(p BulkPayload) {
	if p.Succeeded == nil {
		p.Succeeded = []string{}
	}
	if p.Failed == nil {
		p.Failed = []BulkFailurePayload{}
	}
	b.publish(TypeBulkCompleted, p)
}

// VoiceResult sends a voice.result event.
func (b *Broadcaster) VoiceResult(p VoiceResultPayload) {
	b.publish(TypeVoiceResult, p)
}

// VoiceStateChanged sends a voice.state_changed event.
func (b *Broadcaster) VoiceStateChanged(state string) {
	b.publish(TypeVoiceStateChanged, VoiceStatePayload{State: state})
}

// Notification sends a notification to all connected clients.
func (b *Broadcaster) Notification(level, title, message string) {
	b.publish(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	})
}

func (b *Broadcaster) publish(t MessageType, payload any) {
	if b == nil || b.pub == nil {
		return
	}
	b.pub.Publish(NewMessage(t, payload))
}
