package models

import "time"

// CommandRecord is an audited command sent to the device backend.
type CommandRecord struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	ExternalUID string    `json:"external_uid"`
	Command     string    `json:"command"`
	ValueJSON   *string   `json:"value,omitempty"`
	Success     bool      `json:"success"`
	Error       *string   `json:"error,omitempty"`
	BulkID      *string   `json:"bulk_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CommandFilter narrows a command history query.
type CommandFilter struct {
	DeviceID string
	BulkID   string
	Limit    int
}
