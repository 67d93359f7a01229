// Package homeapitest provides an in-memory device backend for tests.
package homeapitest

import (
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/home-device-controller/backend/internal/homeapi"
)

// Mutation is one metadata update received by the backend.
type Mutation struct {
	DeviceUID string
	Metadata  map[string]any
}

// Server is a fake device backend speaking the same REST dialect as the real one.
type Server struct {
	srv *httptest.Server

	mu          sync.Mutex
	devices     []homeapi.RawDevice
	failUpdates map[string]int
	listStatus  int
	listGate    chan struct{}
	listCalls   int
	mutations   []Mutation
	authHeader  string
	userHeader  string
	nextID      int
}

// NewServer starts a fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		failUpdates: make(map[string]int),
		nextID:      1000,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/devices").Subrouter()
	api.HandleFunc("", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/update", s.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/edit", s.handleEdit).Methods(http.MethodPut)
	api.HandleFunc("/delete", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/online", s.handleOnline).Methods(http.MethodPost)
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the backend base URL.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the backend down.
func (s *Server) Close() { s.srv.Close() }

// Device builds a RawDevice with a heartbeat at lastSeen (zero means none).
func Device(id, uid, name, class string, lastSeen time.Time, metadata map[string]any) homeapi.RawDevice {
	d := homeapi.RawDevice{
		ID:         homeapi.FlexString(id),
		DeviceUID:  uid,
		DeviceName: name,
		DeviceType: class,
		Metadata:   homeapi.FlexMetadata(metadata),
	}
	if !lastSeen.IsZero() {
		ts := lastSeen.UTC().Format(time.RFC3339Nano)
		d.LastSeen = &ts
	}
	if d.Metadata == nil {
		d.Metadata = homeapi.FlexMetadata{}
	}
	return d
}

// SetDevices replaces the backend's device list.
func (s *Server) SetDevices(devices ...homeapi.RawDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append([]homeapi.RawDevice(nil), devices...)
}

// Devices returns a copy of the backend's device list.
func (s *Server) Devices() []homeapi.RawDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]homeapi.RawDevice(nil), s.devices...)
}

// FailUpdates makes metadata updates for uid answer with status. Zero clears it.
func (s *Server) FailUpdates(uid string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failUpdates, uid)
		return
	}
	s.failUpdates[uid] = status
}

// FailList makes the device list answer with status. Zero clears it.
func (s *Server) FailList(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listStatus = status
}

// BlockList holds device list requests until the returned func is called.
func (s *Server) BlockList() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.listGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.listGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// ListCalls returns how many device list requests reached the backend.
func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// Mutations returns the metadata updates received so far.
func (s *Server) Mutations() []Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mutation(nil), s.mutations...)
}

// LastAuth returns the Authorization and x-user-id headers of the latest request.
func (s *Server) LastAuth() (authorization, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authHeader, s.userHeader
}

func (s *Server) recordAuth(r *http.Request) {
	s.authHeader = r.Header.Get("Authorization")
	s.userHeader = r.Header.Get("x-user-id")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.listCalls++
	s.recordAuth(r)
	gate := s.listGate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	status := s.listStatus
	devices := append([]homeapi.RawDevice(nil), s.devices...)
	s.mu.Unlock()

	if status != 0 {
		writeError(w, status, "Failed to fetch devices")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceUID string         `json:"device_uid"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAuth(r)
	s.mutations = append(s.mutations, Mutation{DeviceUID: req.DeviceUID, Metadata: req.Metadata})

	if status, ok := s.failUpdates[req.DeviceUID]; ok {
		writeError(w, status, "Device update failed")
		return
	}

	for i := range s.devices {
		if s.devices[i].DeviceUID == req.DeviceUID {
			meta := homeapi.FlexMetadata{}
			maps.Copy(meta, req.Metadata)
			s.devices[i].Metadata = meta
			writeJSON(w, http.StatusOK, s.devices[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "Device not found")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req homeapi.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAuth(r)
	s.nextID++
	id := strconv.Itoa(s.nextID)
	d := Device(id, "uid-"+id, req.Name, req.Type, time.Time{}, nil)
	d.Status = req.Status
	s.devices = append(s.devices, d)
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceUID  string  `json:"device_uid"`
		DeviceName *string `json:"device_name"`
		Status     *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAuth(r)
	for i := range s.devices {
		if s.devices[i].DeviceUID == req.DeviceUID {
			if req.DeviceName != nil {
				s.devices[i].DeviceName = *req.DeviceName
			}
			if req.Status != nil {
				s.devices[i].Status = *req.Status
			}
			writeJSON(w, http.StatusOK, s.devices[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "Device not found")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceUID string `json:"device_uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAuth(r)
	for i := range s.devices {
		if s.devices[i].DeviceUID == req.DeviceUID {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Device deleted"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Device not found")
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceUID string `json:"device_uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAuth(r)
	for i := range s.devices {
		if s.devices[i].DeviceUID == req.DeviceUID {
			ts := time.Now().UTC().Format(time.RFC3339Nano)
			s.devices[i].LastSeen = &ts
			s.devices[i].Status = "online"
			writeJSON(w, http.StatusOK, s.devices[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "Device not found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
