package collector

import (
	"testing"

	"github.com/RogerSalama/TinyTelemetry/internal/journal"
)

func rowAt(tsMs int64) journal.Row {
	return journal.Row{SenderTimeS: uint32(tsMs / 1000), SenderMillis: uint16(tsMs % 1000)}
}

func TestReorderWatermarkRelease(t *testing.T) {
	r := NewReorder().WithThresholds(150, 1000)
	r.Push(rowAt(100), 0)
	r.Push(rowAt(200), 0)
	r.Push(rowAt(300), 0)
	r.Push(rowAt(500), 0) // advances watermark to 350

	ready := r.FlushReady(0)
	if len(ready) != 3 {
		t.Fatalf("got %d ready rows, want 3 (ts 100,200,300 <= watermark 350)", len(ready))
	}
	for i := 1; i < len(ready); i++ {
		if ready[i].TsKeyMs() < ready[i-1].TsKeyMs() {
			t.Fatalf("release order not non-decreasing: %v", ready)
		}
	}
	if r.Depth() != 1 {
		t.Fatalf("Depth = %d, want 1 (ts=500 still buffered)", r.Depth())
	}
}

func TestReorderAgeRelease(t *testing.T) {
	r := NewReorder().WithThresholds(150, 1000)
	r.Push(rowAt(100), 0)
	if got := r.FlushReady(500); len(got) != 0 {
		t.Fatalf("got %d ready before age threshold, want 0", len(got))
	}
	ready := r.FlushReady(1000)
	if len(ready) != 1 {
		t.Fatalf("got %d ready at age threshold, want 1", len(ready))
	}
}

func TestReorderOutOfOrderArrivalReleasesSorted(t *testing.T) {
	r := NewReorder().WithThresholds(150, 1000)
	for _, ts := range []int64{100, 200, 500, 400, 300} {
		r.Push(rowAt(ts), 0)
	}
	ready := r.FlushReady(0)
	want := []int64{100, 200, 300}
	if len(ready) != len(want) {
		t.Fatalf("got %d ready, want %d", len(ready), len(want))
	}
	for i, w := range want {
		if ready[i].TsKeyMs() != w {
			t.Fatalf("ready[%d] = %d, want %d", i, ready[i].TsKeyMs(), w)
		}
	}
}

func TestReorderFlushAllSorted(t *testing.T) {
	r := NewReorder()
	for _, ts := range []int64{300, 100, 200} {
		r.Push(rowAt(ts), 0)
	}
	all := r.FlushAll()
	for i := 1; i < len(all); i++ {
		if all[i].TsKeyMs() < all[i-1].TsKeyMs() {
			t.Fatalf("FlushAll not sorted: %v", all)
		}
	}
	if r.Depth() != 0 {
		t.Fatalf("Depth after FlushAll = %d, want 0", r.Depth())
	}
}
