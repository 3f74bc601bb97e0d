package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// MetricsRecord is the per-run aggregate record (spec.md §4.4).
type MetricsRecord struct {
	PacketsReceived      int
	BytesPerReport       float64
	DuplicateRate        float64
	SequenceGapCount     int
	CPUMsPerReport       float64
	ReportingIntervalMs  float64
	FinishedAt           time.Time
}

var metricsHeader = []string{
	"packets_received", "bytes_per_report", "duplicate_rate",
	"sequence_gap_count", "cpu_ms_per_report", "reporting_interval_ms",
	"finished_at",
}

func (m MetricsRecord) csvRecord() []string {
	return []string{
		fmt.Sprintf("%d", m.PacketsReceived),
		fmt.Sprintf("%.3f", m.BytesPerReport),
		fmt.Sprintf("%.6f", m.DuplicateRate),
		fmt.Sprintf("%d", m.SequenceGapCount),
		fmt.Sprintf("%.3f", m.CPUMsPerReport),
		fmt.Sprintf("%.3f", m.ReportingIntervalMs),
		m.FinishedAt.UTC().Format(time.RFC3339),
	}
}

// Accumulator collects running sums during a run, computed the same way
// the udpsrv.py shutdown block does: mean/median over collected samples.
type Accumulator struct {
	mu sync.Mutex

	packetsReceived   int // every accepted frame: INIT, DATA, HEARTBEAT
	dataAccepted      int // accepted DATA frames only (denominator for bytes/cpu)
	duplicates        int
	sequenceGaps      int
	totalBytes        int64
	totalCPUMicros    int64
	intervalSamplesMs []float64
}

// NewAccumulator builds an empty run accumulator.
func NewAccumulator() *Accumulator { return &Accumulator{} }

// RecordAccepted tallies one accepted DATA frame's byte length and CPU cost.
func (a *Accumulator) RecordAccepted(byteLength int, cpuMicros int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.packetsReceived++
	a.dataAccepted++
	a.totalBytes += int64(byteLength)
	a.totalCPUMicros += cpuMicros
}

// RecordAcceptedFrame tallies one accepted non-DATA frame (INIT or
// HEARTBEAT) toward packets_received, per spec.md §4.4's "count of accepted
// frames, excluding discarded corrupt/duplicate" (bytes/cpu are only
// meaningful for DATA, so they are not touched here).
func (a *Accumulator) RecordAcceptedFrame() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.packetsReceived++
}

// RecordDuplicate tallies one duplicate DATA observation.
func (a *Accumulator) RecordDuplicate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.duplicates++
}

// RecordGaps tallies newly observed missing sequence numbers.
func (a *Accumulator) RecordGaps(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sequenceGaps += n
}

// RecordInterval tallies one inter-DATA arrival delta in milliseconds
// (spec.md §4.3 "Interval metric").
func (a *Accumulator) RecordInterval(deltaMs int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.intervalSamplesMs = append(a.intervalSamplesMs, float64(deltaMs))
}

// Finalize computes the closed-form MetricsRecord at shutdown.
func (a *Accumulator) Finalize(now time.Time) MetricsRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := MetricsRecord{
		PacketsReceived:  a.packetsReceived,
		SequenceGapCount: a.sequenceGaps,
		FinishedAt:       now,
	}
	if a.dataAccepted > 0 {
		rec.BytesPerReport = float64(a.totalBytes) / float64(a.dataAccepted)
		rec.CPUMsPerReport = float64(a.totalCPUMicros) / 1000.0 / float64(a.dataAccepted)
	}
	if a.packetsReceived > 0 {
		rec.DuplicateRate = float64(a.duplicates) / float64(a.packetsReceived)
	}
	rec.ReportingIntervalMs = median(a.intervalSamplesMs)
	return rec
}

func median(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}

// AppendMetricsRecord appends rec to path, writing the header first if the
// file is new or empty (spec.md §6 "Aggregate metrics record").
func AppendMetricsRecord(path string, rec MetricsRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("journal: mkdir: %w", err)
		}
	}
	needsHeader := false
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		needsHeader = true
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open metrics file: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(metricsHeader); err != nil {
			return err
		}
	}
	if err := w.Write(rec.csvRecord()); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
