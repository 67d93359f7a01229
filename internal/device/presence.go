package device

import "time"

// StalenessThreshold is the longest heartbeat gap for which a device still counts as online.
const StalenessThreshold = 60 * time.Second

// IsOnline reports whether the device sent a heartbeat within StalenessThreshold
// of now. The boundary is inclusive. A missing timestamp means offline.
func IsOnline(s Snapshot, now time.Time) bool {
	if s.LastSeenAt.IsZero() {
		return false
	}
	return now.Sub(s.LastSeenAt) <= StalenessThreshold
}

// CountOnline returns how many of the snapshots are online at now.
func CountOnline(snaps []Snapshot, now time.Time) int {
	n := 0
	for _, s := range snaps {
		if IsOnline(s, now) {
			n++
		}
	}
	return n
}
