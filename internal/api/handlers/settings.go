package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/home-device-controller/backend/internal/api/middleware"
	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/storage"
	"github.com/home-device-controller/backend/internal/storage/models"
)

// SettingsResponse represents settings in API responses.
type SettingsResponse struct {
	PollIntervalMS  int `json:"poll_interval_ms"`
	BulkConcurrency int `json:"bulk_concurrency"`
}

func settingsResponse(t controller.Tunables) SettingsResponse {
	return SettingsResponse{
		PollIntervalMS:  int(t.PollInterval / time.Millisecond),
		BulkConcurrency: t.BulkConcurrency,
	}
}

// GetSettings returns the runtime settings.
func GetSettings(repo *storage.SettingsRepository, defaults controller.Tunables) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := controller.LoadTunables(r.Context(), repo, defaults)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query settings")
			return
		}
		writeJSON(w, http.StatusOK, settingsResponse(t))
	}
}

// UpdateSettings validates, applies and persists the runtime settings.
func UpdateSettings(repo *storage.SettingsRepository, ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsResponse
		if !decodeBody(w, r, &req) {
			return
		}

		t := controller.Tunables{
			PollInterval:    time.Duration(req.PollIntervalMS) * time.Millisecond,
			BulkConcurrency: req.BulkConcurrency,
		}
		if err := t.Validate(); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		err := repo.SetMany(r.Context(), map[string]string{
			models.SettingPollIntervalMS:  strconv.Itoa(req.PollIntervalMS),
			models.SettingBulkConcurrency: strconv.Itoa(req.BulkConcurrency),
		})
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update settings")
			return
		}

		if err := ctrl.Tune(t); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, fmt.Sprintf("Settings saved but not applied: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, settingsResponse(t))
	}
}
