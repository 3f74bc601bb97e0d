package collector

import (
	"container/heap"

	"github.com/RogerSalama/TinyTelemetry/internal/journal"
)

// defaultGuardMs and defaultMaxBufferMs are the reorder buffer's release
// thresholds (spec.md §4.3 "Reorder buffer", §5 "Timeouts").
const (
	defaultGuardMs     = 150
	defaultMaxBufferMs = 1000
)

type reorderEntry struct {
	tsKeyMs   int64
	arrivalMs int64
	row       journal.Row
}

// reorderHeap is a container/heap.Interface ordered by tsKeyMs, the Go
// stand-in for original_source/udpsrv.py's heapq-based _ReorderBuffer.heap.
type reorderHeap []reorderEntry

func (h reorderHeap) Len() int            { return len(h) }
func (h reorderHeap) Less(i, j int) bool  { return h[i].tsKeyMs < h[j].tsKeyMs }
func (h reorderHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *reorderHeap) Push(x interface{}) { *h = append(*h, x.(reorderEntry)) }
func (h *reorderHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Reorder is a jitter-absorbing buffer keyed by sender timestamp: entries
// release in non-decreasing ts_key_ms order once either the watermark has
// advanced past them or they have aged out (spec.md §3, §4.3, §8).
type Reorder struct {
	h          reorderHeap
	maxSeenTs  int64
	guardMs    int64
	maxBufMs   int64
}

// NewReorder builds a Reorder buffer with the spec's default thresholds.
func NewReorder() *Reorder {
	return &Reorder{guardMs: defaultGuardMs, maxBufMs: defaultMaxBufferMs}
}

// WithThresholds overrides the guard/max-buffer windows (used by tests).
func (r *Reorder) WithThresholds(guardMs, maxBufMs int64) *Reorder {
	r.guardMs = guardMs
	r.maxBufMs = maxBufMs
	return r
}

// Push adds a decoded row keyed by its sender timestamp, tracking arrival
// time for the age-release rule.
func (r *Reorder) Push(row journal.Row, arrivalMs int64) {
	tsKeyMs := row.TsKeyMs()
	if tsKeyMs > r.maxSeenTs {
		r.maxSeenTs = tsKeyMs
	}
	heap.Push(&r.h, reorderEntry{tsKeyMs: tsKeyMs, arrivalMs: arrivalMs, row: row})
}

// FlushReady releases every entry whose ts_key_ms has fallen behind the
// watermark, or whose arrival has aged past maxBufMs, in non-decreasing
// ts_key_ms order.
func (r *Reorder) FlushReady(nowMs int64) []journal.Row {
	watermark := r.maxSeenTs - r.guardMs
	var out []journal.Row
	for r.h.Len() > 0 {
		top := r.h[0]
		if top.tsKeyMs <= watermark || (nowMs-top.arrivalMs) >= r.maxBufMs {
			out = append(out, heap.Pop(&r.h).(reorderEntry).row)
			continue
		}
		break
	}
	return out
}

// FlushAll drains every remaining entry, sorted by ts_key_ms, used at
// shutdown (spec.md §5 "Cancellation").
func (r *Reorder) FlushAll() []journal.Row {
	out := make([]journal.Row, 0, r.h.Len())
	for r.h.Len() > 0 {
		out = append(out, heap.Pop(&r.h).(reorderEntry).row)
	}
	return out
}

// Depth reports the number of entries currently buffered.
func (r *Reorder) Depth() int { return r.h.Len() }
