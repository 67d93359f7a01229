package controller

import (
	"sort"
	"strings"
	"time"

	"github.com/home-device-controller/backend/internal/device"
)

// DeviceView is a snapshot plus its derived presence.
type DeviceView struct {
	device.Snapshot
	Online bool `json:"online"`
}

// Filter narrows a device listing. Zero values match everything.
type Filter struct {
	Class device.Class
	// Query matches display names case-insensitively.
	Query string
}

func (f Filter) match(s device.Snapshot) bool {
	if f.Class != "" && s.Class != f.Class {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	return q == "" || strings.Contains(strings.ToLower(s.DisplayName), q)
}

// Stats summarizes the fleet.
type Stats struct {
	Total   int                  `json:"total"`
	Online  int                  `json:"online"`
	ByClass map[device.Class]int `json:"by_class"`
}

// RegistrySnapshot returns every device in registry order with presence
// evaluated at now.
func (c *Controller) RegistrySnapshot(now time.Time) []DeviceView {
	return c.Devices(Filter{}, now)
}

// Devices returns the devices matching f with presence evaluated at now.
func (c *Controller) Devices(f Filter, now time.Time) []DeviceView {
	snaps := c.registry.List()
	out := make([]DeviceView, 0, len(snaps))
	for _, s := range snaps {
		if !f.match(s) {
			continue
		}
		out = append(out, DeviceView{Snapshot: s, Online: device.IsOnline(s, now)})
	}
	return out
}

// Device returns one device with presence evaluated at now.
func (c *Controller) Device(id string, now time.Time) (DeviceView, bool) {
	s, ok := c.registry.Get(id)
	if !ok {
		return DeviceView{}, false
	}
	return DeviceView{Snapshot: s, Online: device.IsOnline(s, now)}, true
}

// Stats counts devices at now.
func (c *Controller) Stats(now time.Time) Stats {
	snaps := c.registry.List()
	st := Stats{Total: len(snaps), ByClass: make(map[device.Class]int)}
	for _, s := range snaps {
		st.ByClass[s.Class]++
		if device.IsOnline(s, now) {
			st.Online++
		}
	}
	return st
}

// Classes returns the device classes currently present, sorted.
func (c *Controller) Classes() []device.Class {
	seen := make(map[device.Class]bool)
	for _, s := range c.registry.List() {
		seen[s.Class] = true
	}
	out := make([]device.Class, 0, len(seen))
	for cl := range seen {
		out = append(out, cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
