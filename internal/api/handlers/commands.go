package handlers

import (
	"net/http"

	"github.com/home-device-controller/backend/internal/api/middleware"
	"github.com/home-device-controller/backend/internal/storage"
	"github.com/home-device-controller/backend/internal/storage/models"
)

// ListCommands returns the command history, filtered by ?device_id= and ?bulk_id=.
func ListCommands(repo *storage.CommandLogRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		records, err := repo.List(r.Context(), models.CommandFilter{
			DeviceID: q.Get("device_id"),
			BulkID:   q.Get("bulk_id"),
			Limit:    queryLimit(r),
		})
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query command history")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
