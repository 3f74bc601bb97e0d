// Package journal implements per-reading row-level persistence and the
// per-run aggregate metrics record (spec.md §4.3, §4.4), grounded in
// original_source/udpsrv.py's save_to_csv and the metrics.csv block.
package journal

import (
	"fmt"
	"time"
)

// Row is one journaled reading or control-frame event, matching the
// columns enumerated in spec.md §4.3.
type Row struct {
	ArrivalTime   time.Time
	DeviceID      uint8
	UnitName      string // derived from INIT; empty for DATA/HEARTBEAT rows
	BatchCount    uint8  // batch_count as received; meaningful for DATA
	Seq           uint16
	SenderTimeS   uint32
	SenderMillis  uint16
	MsgType       string
	ReadingIndex  int      // 1-based index within the batch; 0 for non-DATA rows
	Reading       *float64 // nil for non-DATA rows
	PeerAddr      string
	DelaySeconds  float64
	DuplicateFlag bool
	GapFlag       bool
	ByteLength    int
	CPUMicros     int64
}

// TsKeyMs is the reorder buffer's sort key: sender timestamp truncated to
// milliseconds (spec.md §3 "Reorder buffer entry").
func (r Row) TsKeyMs() int64 {
	return int64(r.SenderTimeS)*1000 + int64(r.SenderMillis)
}

// SenderTimestampString renders the sender's wall clock with millisecond
// resolution, matching the "%H:%M:%S.mmm"-style formatting of the Python
// reference implementation.
func (r Row) SenderTimestampString() string {
	t := time.Unix(int64(r.SenderTimeS), 0).UTC()
	return fmt.Sprintf("%s.%03d", t.Format("2006-01-02T15:04:05"), r.SenderMillis)
}

// csvHeader and csvRecord keep the on-disk column order in one place.
var csvHeader = []string{
	"arrival_time", "device_id", "unit_name", "batch_count", "seq",
	"sender_timestamp", "msg_type", "reading_index", "reading",
	"peer_addr", "delay_seconds", "duplicate_flag", "gap_flag",
	"byte_length", "cpu_micros",
}

func (r Row) csvRecord() []string {
	reading := ""
	if r.Reading != nil {
		reading = fmt.Sprintf("%.6f", *r.Reading)
	}
	dup := "0"
	if r.DuplicateFlag {
		dup = "1"
	}
	gap := "0"
	if r.GapFlag {
		gap = "1"
	}
	return []string{
		r.ArrivalTime.UTC().Format(time.RFC3339Nano),
		fmt.Sprintf("%d", r.DeviceID),
		r.UnitName,
		fmt.Sprintf("%d", r.BatchCount),
		fmt.Sprintf("%d", r.Seq),
		r.SenderTimestampString(),
		r.MsgType,
		fmt.Sprintf("%d", r.ReadingIndex),
		reading,
		r.PeerAddr,
		fmt.Sprintf("%.3f", r.DelaySeconds),
		dup,
		gap,
		fmt.Sprintf("%d", r.ByteLength),
		fmt.Sprintf("%d", r.CPUMicros),
	}
}
