package sender

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// historyKey identifies one transmitted frame for retransmission lookups.
type historyKey struct {
	deviceID uint8
	seq      uint16
}

// defaultHistoryCapacity bounds the LRU to a window comfortably larger than
// any plausible gap-plus-latency: the spec only requires serving at least
// one retransmit, but unbounded growth is a leak (design notes, "History
// retention").
const defaultHistoryCapacity = 4096

// History is the sender-side retransmission cache: (device_id, seq) to the
// exact bytes that were transmitted on the wire.
type History struct {
	cache *lru.Cache[historyKey, []byte]
}

// NewHistory builds a bounded LRU history with the given capacity.
func NewHistory(capacity int) (*History, error) {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	c, err := lru.New[historyKey, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &History{cache: c}, nil
}

// Put records a transmitted frame.
func (h *History) Put(deviceID uint8, seq uint16, frame []byte) {
	h.cache.Add(historyKey{deviceID, seq}, frame)
}

// Get looks up a previously transmitted frame.
func (h *History) Get(deviceID uint8, seq uint16) ([]byte, bool) {
	return h.cache.Get(historyKey{deviceID, seq})
}

// PurgeDevice drops every history entry for deviceID, used when a device
// re-INITs after an unrecoverable seq=1 NACK (spec.md §4.2 step 2).
func (h *History) PurgeDevice(deviceID uint8) {
	for _, k := range h.cache.Keys() {
		if k.deviceID == deviceID {
			h.cache.Remove(k)
		}
	}
}
