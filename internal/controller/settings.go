package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/home-device-controller/backend/internal/storage/models"
)

// Tunables are the settings that can change while running.
type Tunables struct {
	PollInterval    time.Duration
	BulkConcurrency int
}

// Validate checks the values.
func (t Tunables) Validate() error {
	var errs []error
	if t.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", t.PollInterval))
	}
	if t.BulkConcurrency < 0 {
		errs = append(errs, fmt.Errorf("bulk concurrency must not be negative, got %d", t.BulkConcurrency))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// SettingsSource returns persisted settings by key.
// *storage.SettingsRepository implements it.
type SettingsSource interface {
	All(ctx context.Context) (map[string]string, error)
}

// LoadTunables overlays persisted settings on defaults. Unset or malformed
// values keep the default.
func LoadTunables(ctx context.Context, src SettingsSource, defaults Tunables) (Tunables, error) {
	values, err := src.All(ctx)
	if err != nil {
		return defaults, fmt.Errorf("loading settings: %w", err)
	}

	t := defaults
	if ms, err := strconv.Atoi(values[models.SettingPollIntervalMS]); err == nil && ms > 0 {
		t.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if n, err := strconv.Atoi(values[models.SettingBulkConcurrency]); err == nil && n >= 0 {
		t.BulkConcurrency = n
	}
	return t, nil
}

// Tune applies t. A running poller is rescheduled to the new interval.
func (c *Controller) Tune(t Tunables) error {
	if err := t.Validate(); err != nil {
		return err
	}
	c.dispatcher.SetConcurrency(t.BulkConcurrency)
	if c.poller.Running() {
		if err := c.poller.Start(t.PollInterval); err != nil {
			return fmt.Errorf("rescheduling poller: %w", err)
		}
	}
	c.log.Info().
		Dur("poll_interval", t.PollInterval).
		Int("bulk_concurrency", t.BulkConcurrency).
		Msg("settings applied")
	return nil
}
