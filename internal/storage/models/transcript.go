package models

import "time"

// TranscriptRecord is an interpreted voice transcript.
type TranscriptRecord struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	IntentKind string    `json:"intent_kind"`
	TargetName *string   `json:"target_name,omitempty"`
	TurnOn     bool      `json:"turn_on"`
	ResultKind string    `json:"result_kind"`
	DeviceID   *string   `json:"device_id,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
