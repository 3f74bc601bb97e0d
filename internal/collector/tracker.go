// Package collector implements the collector half of the telemetry
// protocol: per-device sequence tracking, a delayed NACK scheduler, and a
// bounded reorder buffer (spec.md §4.3).
package collector

// Classification is the closed outcome of classifying one arriving
// sequence against a device's tracker (spec.md §4.3 "Sequence
// classification"). Implemented as a tagged enum per the design note
// "Dynamic dispatch ... implement as a tagged sum, not virtual dispatch".
type Classification uint8

const (
	InOrder Classification = iota
	Gap
	Recovered
	Duplicate
	Heartbeat
)

func (c Classification) String() string {
	switch c {
	case InOrder:
		return "in_order"
	case Gap:
		return "gap"
	case Recovered:
		return "recovered"
	case Duplicate:
		return "duplicate"
	case Heartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Tracker is one device's sequence-tracking state.
type Tracker struct {
	HighestSeq   uint16
	MissingSet   map[uint16]struct{}
	LastDataTsMs *int64
}

// NewTracker creates a tracker from an INIT frame's seq, per spec.md §4.3
// "Admission": the INIT itself advances highest_seq to seq, so the first
// DATA frame after it is classified against seq, not seq-1.
func NewTracker(initSeq uint16) *Tracker {
	return &Tracker{
		HighestSeq: initSeq,
		MissingSet: make(map[uint16]struct{}),
	}
}

// Classify applies spec.md §4.3's classification rules for one arriving
// seq, mutating the tracker and returning the outcome plus, for a Gap, the
// newly missing sequence numbers (highest_seq, seq) exclusive-exclusive.
func (t *Tracker) Classify(seq uint16) (Classification, []uint16) {
	if seq == 0 {
		return Heartbeat, nil
	}
	diff := int32(seq) - int32(t.HighestSeq)
	switch {
	case diff == 1:
		t.HighestSeq = seq
		return InOrder, nil
	case diff > 1:
		newlyMissing := make([]uint16, 0, diff-1)
		for m := t.HighestSeq + 1; m != seq; m++ {
			t.MissingSet[m] = struct{}{}
			newlyMissing = append(newlyMissing, m)
		}
		t.HighestSeq = seq
		return Gap, newlyMissing
	default: // diff <= 0
		if _, missing := t.MissingSet[seq]; missing {
			delete(t.MissingSet, seq)
			return Recovered, nil
		}
		return Duplicate, nil
	}
}

// IsMissing reports whether seq is still outstanding, used by the NACK
// scheduler's due-time check (spec.md §4.3 "NACK scheduler").
func (t *Tracker) IsMissing(seq uint16) bool {
	_, ok := t.MissingSet[seq]
	return ok
}
