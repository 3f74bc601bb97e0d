package sender

import (
	"fmt"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/wire"
)

func timestampFields(now time.Time) (uint32, uint16) {
	s := uint32(now.Unix())
	ms := uint16(now.Nanosecond() / int(time.Millisecond))
	return s, ms
}

// buildInitFrame assembles the per-device INIT frame: batch_count carries
// the 4-bit unit code, seq is always 1, payload is empty (spec.md §4.2
// "Initialization").
func buildInitFrame(st *State, now time.Time) ([]byte, uint16, error) {
	seq := st.ConsumeInitSeq()
	s, ms := timestampFields(now)
	h := wire.Header{
		DeviceID:     st.Descriptor.DeviceID,
		BatchCount:   st.Descriptor.UnitCode,
		Seq:          seq,
		TimestampS:   s,
		Milliseconds: ms,
		ProtoVer:     wire.ProtoVersion,
		MsgType:      wire.MsgInit,
	}
	frame, err := wire.BuildFrame(h, nil)
	return frame, seq, err
}

// buildDataFrame reads the next batch of samples from the device's data
// stream, encodes, obfuscates, and frames them as a DATA datagram
// (spec.md §4.1, §4.2 "Pacing").
func buildDataFrame(st *State, now time.Time) ([]byte, uint16, error) {
	samples, err := st.Descriptor.Source.Next(wire.MaxBatchSamples)
	if err != nil {
		return nil, 0, fmt.Errorf("sender: read samples: %w", err)
	}
	plain, err := wire.EncodeBatch(samples)
	if err != nil {
		return nil, 0, err
	}
	seq := st.ConsumeDataSeq()
	obfuscated := wire.XOR(plain, st.Descriptor.DeviceID, seq)
	s, ms := timestampFields(now)
	h := wire.Header{
		DeviceID:     st.Descriptor.DeviceID,
		BatchCount:   uint8(len(samples)),
		Seq:          seq,
		TimestampS:   s,
		Milliseconds: ms,
		ProtoVer:     wire.ProtoVersion,
		MsgType:      wire.MsgData,
	}
	frame, err := wire.BuildFrame(h, obfuscated)
	return frame, seq, err
}

// buildHeartbeatFrame assembles a HEARTBEAT frame: batch_count=0, seq=0,
// empty payload. HEARTBEATs are never recorded in history (spec.md §4.2
// "Heartbeat").
func buildHeartbeatFrame(deviceID uint8, now time.Time) ([]byte, error) {
	s, ms := timestampFields(now)
	h := wire.Header{
		DeviceID:     deviceID,
		BatchCount:   0,
		Seq:          0,
		TimestampS:   s,
		Milliseconds: ms,
		ProtoVer:     wire.ProtoVersion,
		MsgType:      wire.MsgHeartbeat,
	}
	return wire.BuildFrame(h, nil)
}
