package device

import (
	"sync"

	"github.com/rs/zerolog"
)

// Reconciliation describes what a poll changed in the Registry.
type Reconciliation struct {
	Added   []string
	Updated []string
	Removed []string
	// Regressed lists devices whose polled last-seen time was older than the
	// stored one. The stored value was kept.
	Regressed []string
	// Duplicates lists ids that appeared more than once in the poll.
	Duplicates []string
}

// Registry is the in-memory cache of device snapshots. It never talks to the
// network; the poller and the dispatcher feed it.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]Snapshot
	log   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		byID: make(map[string]Snapshot),
		log:  log.With().Str("component", "registry").Logger(),
	}
}

// UpsertFromPoll replaces the full device set with snaps, keeping their order.
// A device's last-seen time never moves backwards: an older polled value is
// discarded in favour of the stored one. Devices missing from snaps are removed.
func (r *Registry) UpsertFromPoll(snaps []Snapshot) Reconciliation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rec Reconciliation
	next := make(map[string]Snapshot, len(snaps))
	order := make([]string, 0, len(snaps))

	for _, s := range snaps {
		if _, dup := next[s.ID]; dup {
			rec.Duplicates = append(rec.Duplicates, s.ID)
			r.log.Warn().Str("device_id", s.ID).Msg("duplicate device id in poll, keeping first")
			continue
		}

		s = s.Clone()
		if prev, ok := r.byID[s.ID]; ok {
			if s.LastSeenAt.Before(prev.LastSeenAt) {
				rec.Regressed = append(rec.Regressed, s.ID)
				r.log.Warn().
					Str("device_id", s.ID).
					Time("stored", prev.LastSeenAt).
					Time("polled", s.LastSeenAt).
					Msg("last_seen regressed, keeping stored value")
				s.LastSeenAt = prev.LastSeenAt
			}
			rec.Updated = append(rec.Updated, s.ID)
		} else {
			rec.Added = append(rec.Added, s.ID)
		}

		next[s.ID] = s
		order = append(order, s.ID)
	}

	for _, id := range r.order {
		if _, ok := next[id]; !ok {
			rec.Removed = append(rec.Removed, id)
		}
	}

	r.byID = next
	r.order = order
	return rec
}

// ApplyOptimisticPatch shallow-merges partial into the device's metadata and
// returns the updated snapshot. LastSeenAt is left alone. The second result is
// false when the device is unknown.
func (r *Registry) ApplyOptimisticPatch(id string, partial map[string]any) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return Snapshot{}, false
	}

	s = s.Clone()
	for k, v := range partial {
		s.Metadata[k] = v
	}
	r.byID[id] = s

	return s.Clone(), true
}

// Get returns a copy of the device's snapshot.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	return s.Clone(), true
}

// List returns copies of all snapshots in the order of the most recent poll.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out
}

// Len returns the number of cached devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
