package handlers

import (
	"net/http"
	"strings"

	"github.com/home-device-controller/backend/internal/api/middleware"
	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/storage"
)

// TranscriptRequest is a transcript to interpret.
type TranscriptRequest struct {
	Text string `json:"text"`
}

// VoiceStateResponse reports the listening state.
type VoiceStateResponse struct {
	State   string `json:"state"`
	Changed bool   `json:"changed"`
}

// SubmitTranscript interprets a transcript immediately.
func SubmitTranscript(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TranscriptRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "text is required")
			return
		}
		writeJSON(w, http.StatusOK, ctrl.SubmitTranscript(r.Context(), req.Text))
	}
}

// GetVoiceState returns the listening state.
func GetVoiceState(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VoiceStateResponse{State: string(ctrl.VoiceState())})
	}
}

// StartVoice starts listening.
func StartVoice(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changed := ctrl.StartListening()
		writeJSON(w, http.StatusOK, VoiceStateResponse{State: string(ctrl.VoiceState()), Changed: changed})
	}
}

// StopVoice stops listening. An interpretation in progress still completes.
func StopVoice(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changed := ctrl.StopListening()
		writeJSON(w, http.StatusOK, VoiceStateResponse{State: string(ctrl.VoiceState()), Changed: changed})
	}
}

// VoiceHistory returns recent transcripts, newest first.
func VoiceHistory(repo *storage.TranscriptRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := repo.Recent(r.Context(), queryLimit(r))
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query transcripts")
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
