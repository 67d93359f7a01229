// Package api provides HTTP routing for the REST and WebSocket API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/api/handlers"
	"github.com/home-device-controller/backend/internal/api/middleware"
	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/logging"
	"github.com/home-device-controller/backend/internal/metrics"
	"github.com/home-device-controller/backend/internal/storage"
	"github.com/home-device-controller/backend/internal/websocket"
)

// Dependencies are the services the routes are served from.
type Dependencies struct {
	DB          *storage.DB
	Controller  *controller.Controller
	Hub         *websocket.Hub
	Settings    *storage.SettingsRepository
	Commands    *storage.CommandLogRepository
	Transcripts *storage.TranscriptRepository
	// Defaults are the configured settings used when none are stored.
	Defaults  controller.Tunables
	StaticDir string
	Log       zerolog.Logger
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(d Dependencies) *mux.Router {
	r := mux.NewRouter()
	log := logging.Component(d.Log, "http")
	ctrl := d.Controller

	r.Use(middleware.Logging(log))
	r.Use(middleware.ErrorRecovery(log))

	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(d.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(ctrl, d.Hub)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(d.Hub, ctrl, d.Log)).Methods("GET")

	// Device endpoints
	api.HandleFunc("/devices", handlers.ListDevices(ctrl)).Methods("GET")
	api.HandleFunc("/devices", handlers.RegisterDevice(ctrl)).Methods("POST")
	api.HandleFunc("/devices/refresh", handlers.RefreshDevices(ctrl)).Methods("POST")
	api.HandleFunc("/devices/toggle-all", handlers.ToggleAll(ctrl)).Methods("POST")
	api.HandleFunc("/devices/{id}", handlers.GetDevice(ctrl)).Methods("GET")
	api.HandleFunc("/devices/{id}", handlers.EditDevice(ctrl)).Methods("PUT")
	api.HandleFunc("/devices/{id}", handlers.DeleteDevice(ctrl)).Methods("DELETE")
	api.HandleFunc("/devices/{id}/toggle", handlers.ToggleDevice(ctrl)).Methods("POST")
	api.HandleFunc("/devices/{id}/commands", handlers.SendCommand(ctrl)).Methods("POST")
	api.HandleFunc("/devices/{id}/online", handlers.MarkDeviceOnline(ctrl)).Methods("POST")

	// Command history
	api.HandleFunc("/commands", handlers.ListCommands(d.Commands)).Methods("GET")

	// Voice endpoints
	api.HandleFunc("/voice", handlers.GetVoiceState(ctrl)).Methods("GET")
	api.HandleFunc("/voice/start", handlers.StartVoice(ctrl)).Methods("POST")
	api.HandleFunc("/voice/stop", handlers.StopVoice(ctrl)).Methods("POST")
	api.HandleFunc("/voice/transcripts", handlers.SubmitTranscript(ctrl)).Methods("POST")
	api.HandleFunc("/voice/history", handlers.VoiceHistory(d.Transcripts)).Methods("GET")

	// Settings endpoints
	api.HandleFunc("/settings", handlers.GetSettings(d.Settings, d.Defaults)).Methods("GET")
	api.HandleFunc("/settings", handlers.UpdateSettings(d.Settings, ctrl)).Methods("PUT")

	// Serve static frontend files
	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}

	return r
}
