package sender

import "github.com/RogerSalama/TinyTelemetry/internal/sensor"

// State is one device's sender-side session state: its sequence counter,
// data cursor (via the configured sensor.Source), and unit code. next_seq
// starts at 1 (INIT consumes it); DATA starts at 2 (spec.md §3).
type State struct {
	Descriptor sensor.Descriptor
	NextSeq    uint16
}

// NewState builds fresh per-device state for a configured sensor.
func NewState(d sensor.Descriptor) *State {
	return &State{Descriptor: d, NextSeq: 1}
}

// ConsumeInitSeq returns the seq used for this device's INIT frame. It is
// always 1, regardless of NextSeq's current value, since INIT (including a
// re-INIT issued after an unsatisfiable NACK) always consumes seq=1. It
// advances NextSeq to 2.
func (s *State) ConsumeInitSeq() uint16 {
	s.NextSeq = 2
	return 1
}

// ConsumeDataSeq returns the next DATA seq and advances the counter.
func (s *State) ConsumeDataSeq() uint16 {
	seq := s.NextSeq
	s.NextSeq++
	return seq
}

// ResetAfterReinit restores state to its post-INIT form: next DATA seq is
// 2 and the data stream rewinds to its start (spec.md §4.2 NACK step 2).
func (s *State) ResetAfterReinit() {
	s.NextSeq = 2
	if r, ok := s.Descriptor.Source.(interface{ Reset() }); ok {
		r.Reset()
	}
}
