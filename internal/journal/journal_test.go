package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func reading(v float64) *float64 { return &v }

func TestJournalAppendAndMarkDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.csv")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rows := []Row{
		{DeviceID: 2, Seq: 5, ReadingIndex: 1, Reading: reading(1.5), MsgType: "DATA", ArrivalTime: time.Now()},
		{DeviceID: 2, Seq: 5, ReadingIndex: 2, Reading: reading(2.5), MsgType: "DATA", ArrivalTime: time.Now()},
		{DeviceID: 2, Seq: 6, ReadingIndex: 1, Reading: reading(3.5), MsgType: "DATA", ArrivalTime: time.Now()},
	}
	if err := j.Append(rows...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := j.MarkDuplicate(2, 5); err != nil {
		t.Fatalf("MarkDuplicate: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open for verify: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 { // header + 3 rows
		t.Fatalf("got %d records, want 4", len(records))
	}
	if records[1][duplicateCol] != "1" || records[2][duplicateCol] != "1" {
		t.Fatalf("expected seq=5 rows duplicate-marked: %v", records[1:3])
	}
	if records[3][duplicateCol] != "0" {
		t.Fatalf("expected seq=6 row untouched: %v", records[3])
	}
}

func TestAccumulatorFinalize(t *testing.T) {
	a := NewAccumulator()
	a.RecordAccepted(64, 1000)
	a.RecordAccepted(64, 2000)
	a.RecordDuplicate()
	a.RecordGaps(3)
	a.RecordInterval(1000)
	a.RecordInterval(1100)
	a.RecordInterval(900)

	rec := a.Finalize(time.Unix(1000, 0))
	if rec.PacketsReceived != 2 {
		t.Fatalf("PacketsReceived = %d, want 2", rec.PacketsReceived)
	}
	if rec.BytesPerReport != 64 {
		t.Fatalf("BytesPerReport = %v, want 64", rec.BytesPerReport)
	}
	if rec.DuplicateRate != 0.5 {
		t.Fatalf("DuplicateRate = %v, want 0.5", rec.DuplicateRate)
	}
	if rec.SequenceGapCount != 3 {
		t.Fatalf("SequenceGapCount = %d, want 3", rec.SequenceGapCount)
	}
	if rec.ReportingIntervalMs != 1000 {
		t.Fatalf("ReportingIntervalMs = %v, want 1000 (median of 900,1000,1100)", rec.ReportingIntervalMs)
	}
}

func TestAppendMetricsRecordWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	rec := MetricsRecord{PacketsReceived: 6, FinishedAt: time.Unix(0, 0)}
	if err := AppendMetricsRecord(path, rec); err != nil {
		t.Fatalf("AppendMetricsRecord: %v", err)
	}
	if err := AppendMetricsRecord(path, rec); err != nil {
		t.Fatalf("AppendMetricsRecord (2nd): %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 3 { // one header + two rows
		t.Fatalf("got %d records, want 3", len(records))
	}
}
