package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/home-device-controller/backend/internal/api/middleware"
	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/dispatch"
	"github.com/home-device-controller/backend/internal/homeapi"
)

// DeviceListResponse is the device list with fleet counts.
type DeviceListResponse struct {
	Devices []controller.DeviceView `json:"devices"`
	Stats   controller.Stats        `json:"stats"`
}

// ListDevices returns devices, optionally filtered by ?class= and ?q=.
func ListDevices(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := controller.Filter{Query: q.Get("q")}
		if class := q.Get("class"); class != "" {
			f.Class = device.ParseClass(class)
		}

		now := time.Now()
		writeJSON(w, http.StatusOK, DeviceListResponse{
			Devices: ctrl.Devices(f, now),
			Stats:   ctrl.Stats(now),
		})
	}
}

// GetDevice returns one device.
func GetDevice(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := ctrl.Device(mux.Vars(r)["id"], time.Now())
		if !ok {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Device not found")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ToggleRequest is the body of toggle requests. A missing state on a single
// device flips its current state.
type ToggleRequest struct {
	State *bool `json:"state"`
}

// ToggleDevice switches a device on or off.
func ToggleDevice(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req ToggleRequest
		if !decodeOptionalBody(w, r, &req) {
			return
		}

		desired := false
		if req.State != nil {
			desired = *req.State
		} else {
			view, ok := ctrl.Device(id, time.Now())
			if !ok {
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Device not found")
				return
			}
			on, _ := view.State()
			desired = !on
		}

		snap, err := ctrl.ToggleDevice(r.Context(), id, desired)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, controller.DeviceView{Snapshot: snap, Online: device.IsOnline(snap, time.Now())})
	}
}

// CommandRequest is the body of a device command.
type CommandRequest struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
}

// SendCommand sends an arbitrary command to a device.
func SendCommand(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CommandRequest
		if !decodeBody(w, r, &req) {
			return
		}

		cmd, err := dispatch.ParseCommand(req.Command, req.Value)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		snap, err := ctrl.SendCommand(r.Context(), mux.Vars(r)["id"], cmd)
		if err != nil {
			writeCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, controller.DeviceView{Snapshot: snap, Online: device.IsOnline(snap, time.Now())})
	}
}

// BulkResponse is the outcome of a fleet-wide toggle.
type BulkResponse struct {
	dispatch.BulkOutcome
	Summary string `json:"summary"`
}

// ToggleAll switches every light and switch on or off.
func ToggleAll(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ToggleRequest
		if !decodeOptionalBody(w, r, &req) {
			return
		}
		if req.State == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "state is required")
			return
		}

		out := ctrl.ToggleAll(r.Context(), *req.State)
		writeJSON(w, http.StatusOK, BulkResponse{BulkOutcome: out, Summary: bulkSummary(out)})
	}
}

func bulkSummary(b dispatch.BulkOutcome) string {
	dir := "off"
	if b.TurnOn {
		dir = "on"
	}
	switch {
	case b.Attempted() == 0:
		return "No devices to turn " + dir
	case len(b.Failed) == 0:
		return "All devices turned " + dir
	case len(b.Succeeded) == 0:
		return "Failed to turn " + dir + " any device"
	default:
		return "Some devices could not be turned " + dir
	}
}

// RefreshDevices polls the backend now.
func RefreshDevices(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Refresh(r.Context()); err != nil {
			writeCoreError(w, err)
			return
		}
		now := time.Now()
		writeJSON(w, http.StatusOK, DeviceListResponse{
			Devices: ctrl.RegistrySnapshot(now),
			Stats:   ctrl.Stats(now),
		})
	}
}

// RegisterDevice registers a new device with the backend.
func RegisterDevice(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req homeapi.Registration
		if !decodeBody(w, r, &req) {
			return
		}

		raw, err := ctrl.RegisterDevice(r.Context(), req)
		if err != nil {
			writeCoreError(w, err)
			return
		}

		resp := map[string]any{"message": "Device registered"}
		if raw != nil {
			if view, ok := ctrl.Device(string(raw.ID), time.Now()); ok {
				resp["device"] = view
			}
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// EditDevice renames a device or overrides its status.
func EditDevice(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req homeapi.Edit
		if !decodeBody(w, r, &req) {
			return
		}
		if err := ctrl.EditDevice(r.Context(), id, req); err != nil {
			writeCoreError(w, err)
			return
		}

		view, ok := ctrl.Device(id, time.Now())
		if !ok {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Device updated"})
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// DeleteDevice removes a device from the backend.
func DeleteDevice(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.DeleteDevice(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeCoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MarkDeviceOnline records a heartbeat for a device.
func MarkDeviceOnline(ctrl *controller.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := ctrl.MarkOnline(r.Context(), id); err != nil {
			writeCoreError(w, err)
			return
		}

		view, ok := ctrl.Device(id, time.Now())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
