package collector

import "sync"

// TrackerTable is the shared per-device tracker map: mutated only by the
// receiver, read under a short lock by the NACK scheduler (spec.md §5
// "Shared resources", §9 "Shared state").
type TrackerTable struct {
	mu       sync.RWMutex
	trackers map[uint8]*Tracker
}

// NewTrackerTable builds an empty tracker table.
func NewTrackerTable() *TrackerTable {
	return &TrackerTable{trackers: make(map[uint8]*Tracker)}
}

// Init creates a tracker for deviceID from an INIT frame's seq. Re-INIT
// (e.g. after a sender's seq=1 NACK recovery) replaces the existing
// tracker, matching the sender's own history purge on reinit.
func (tt *TrackerTable) Init(deviceID uint8, initSeq uint16) *Tracker {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	t := NewTracker(initSeq)
	tt.trackers[deviceID] = t
	return t
}

// Get returns the tracker for deviceID, if one exists.
func (tt *TrackerTable) Get(deviceID uint8) (*Tracker, bool) {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	t, ok := tt.trackers[deviceID]
	return t, ok
}

// IsMissing reports whether seq is still outstanding for deviceID, or
// whether deviceID has no tracker at all and seq is 1 (spec.md §4.3 "NACK
// scheduler": "or is seq=1 for a device with no tracker").
func (tt *TrackerTable) IsMissing(deviceID uint8, seq uint16) bool {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	t, ok := tt.trackers[deviceID]
	if !ok {
		return seq == 1
	}
	return t.IsMissing(seq)
}

// Len returns the number of tracked devices, used for the active-devices
// gauge.
func (tt *TrackerTable) Len() int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return len(tt.trackers)
}
