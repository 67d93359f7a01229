// Package events defines the event envelope pushed to UIs and mirrors.
package events

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of event message.
type MessageType string

const (
	// Server -> Client event types
	TypeDeviceStateChanged    MessageType = "device.state_changed"
	TypeDevicePresenceChanged MessageType = "device.presence_changed"
	TypeDevicesRemoved        MessageType = "devices.removed"
	TypeRegistryRefreshed     MessageType = "registry.refreshed"
	TypePollFailed            MessageType = "poll.failed"
	TypeCommandCompleted      MessageType = "command.completed"
	TypeBulkCompleted         MessageType = "bulk.completed"
	TypeVoiceResult           MessageType = "voice.result"
	TypeVoiceStateChanged     MessageType = "voice.state_changed"
	TypeNotification          MessageType = "notification"

	// Client -> Server command types
	TypePing            MessageType = "ping"
	TypeVoiceTranscript MessageType = "voice.transcript"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents an event envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Inbound is a client message whose payload is decoded lazily by type.
type Inbound struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DeviceStatePayload is the payload for device.state_changed events.
type DeviceStatePayload struct {
	DeviceID    string         `json:"device_id"`
	DisplayName string         `json:"display_name"`
	Class       string         `json:"class"`
	Metadata    map[string]any `json:"metadata"`
	Command     string         `json:"command,omitempty"`
}

// PresencePayload is the payload for device.presence_changed events.
type PresencePayload struct {
	DeviceID    string     `json:"device_id"`
	DisplayName string     `json:"display_name"`
	Online      bool       `json:"online"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// DevicesRemovedPayload is the payload for devices.removed events.
type DevicesRemovedPayload struct {
	DeviceIDs []string `json:"device_ids"`
}

// RegistryRefreshedPayload is the payload for registry.refreshed events.
type RegistryRefreshedPayload struct {
	Total    int       `json:"total"`
	Online   int       `json:"online"`
	Added    int       `json:"added"`
	Removed  int       `json:"removed"`
	PolledAt time.Time `json:"polled_at"`
}

// PollFailedPayload is the payload for poll.failed events.
type PollFailedPayload struct {
	Error string `json:"error"`
}

// CommandPayload is the payload for command.completed events.
type CommandPayload struct {
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	BulkID   string `json:"bulk_id,omitempty"`
}

// BulkFailurePayload describes one failed device of a bulk command.
type BulkFailurePayload struct {
	DeviceID string `json:"device_id"`
	Reason   string `json:"reason"`
}

// BulkPayload is the payload for bulk.completed events.
type BulkPayload struct {
	BulkID    string               `json:"bulk_id"`
	TurnOn    bool                 `json:"turn_on"`
	Succeeded []string             `json:"succeeded"`
	Failed    []BulkFailurePayload `json:"failed"`
}

// VoiceResultPayload is the payload for voice.result events.
type VoiceResultPayload struct {
	Transcript string `json:"transcript"`
	Kind       string `json:"kind"`
	TargetName string `json:"target_name,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	Message    string `json:"message"`
}

// VoiceStatePayload is the payload for voice.state_changed events.
type VoiceStatePayload struct {
	State string `json:"state"`
}

// TranscriptPayload is the payload of a client voice.transcript message.
// Final defaults to true when omitted.
type TranscriptPayload struct {
	Text  string `json:"text"`
	Final *bool  `json:"final,omitempty"`
}

// IsFinal reports whether the transcript is the final recognition result.
func (p TranscriptPayload) IsFinal() bool {
	return p.Final == nil || *p.Final
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
