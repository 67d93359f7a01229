package models

import "time"

// Setting keys persisted in the settings table.
const (
	SettingPollIntervalMS  = "poll_interval_ms"
	SettingBulkConcurrency = "bulk_concurrency"
)

// Setting is one persisted key/value pair.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
