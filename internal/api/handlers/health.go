package handlers

import (
	"net/http"
	"time"

	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/poller"
	"github.com/home-device-controller/backend/internal/storage"
	"github.com/home-device-controller/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string `json:"status"`
	DBConnected   bool   `json:"db_connected"`
	SchemaVersion int    `json:"schema_version"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := db.SchemaVersion(r.Context())
		dbConnected := err == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected, SchemaVersion: version})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	BackendReachable bool             `json:"backend_reachable"`
	Devices          controller.Stats `json:"devices"`
	Poll             poller.Status    `json:"poll"`
	VoiceState       string           `json:"voice_state"`
	ConnectedClients int              `json:"connected_clients"`
}

// Status returns a handler that provides system status information.
func Status(ctrl *controller.Controller, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			BackendReachable: ctrl.BackendReachable(r.Context()),
			Devices:          ctrl.Stats(time.Now()),
			Poll:             ctrl.Poller().Status(),
			VoiceState:       string(ctrl.VoiceState()),
			ConnectedClients: hub.ClientCount(),
		})
	}
}
