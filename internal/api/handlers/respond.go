// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/home-device-controller/backend/internal/api/middleware"
	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/dispatch"
	"github.com/home-device-controller/backend/internal/homeapi"
	"github.com/home-device-controller/backend/internal/poller"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints whose fields are all
// optional: an empty body leaves v untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	return true
}

// queryLimit parses the limit query parameter. Missing or invalid values give zero.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

// writeCoreError maps controller errors to HTTP responses.
func writeCoreError(w http.ResponseWriter, err error) {
	var apiErr *homeapi.APIError

	switch {
	case errors.Is(err, dispatch.ErrDeviceNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Device not found")
	case errors.Is(err, dispatch.ErrInvalidCommand), errors.Is(err, controller.ErrInvalidRequest):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	case errors.Is(err, poller.ErrPollInFlight):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "A refresh is already in progress")
	case errors.Is(err, homeapi.ErrNoCredentials):
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Not signed in to the device backend")
	case errors.As(err, &apiErr):
		middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrBadGateway, apiErr.Message,
			map[string]int{"upstream_status": apiErr.Status})
	default:
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrBadGateway, err.Error())
	}
}
