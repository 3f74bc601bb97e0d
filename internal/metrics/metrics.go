// Package metrics exposes Prometheus counters/gauges for the collector and
// sender, plus a small in-process mirror for cheap periodic logging without
// scraping Prometheus. Ported from the teacher's internal/metrics package,
// retargeted from CAN-gateway concerns to telemetry-protocol concerns.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/RogerSalama/TinyTelemetry/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters/gauges.
var (
	FramesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_accepted_total",
		Help: "Total frames accepted by the collector (excludes corrupt/duplicate).",
	})
	FramesCorrupt = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_corrupt_total",
		Help: "Total frames dropped due to checksum mismatch.",
	})
	FramesMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_frames_malformed_total",
		Help: "Total frames dropped due to a short, oversized or unsupported header.",
	})
	DuplicateFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_duplicate_frames_total",
		Help: "Total DATA frames classified as duplicates.",
	})
	SequenceGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_sequence_gaps_total",
		Help: "Total missing sequence numbers observed across all devices.",
	})
	NacksScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_nacks_scheduled_total",
		Help: "Total NACK requests scheduled.",
	})
	NacksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_nacks_sent_total",
		Help: "Total NACK frames actually transmitted.",
	})
	NacksSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_nacks_suppressed_total",
		Help: "Total scheduled NACKs dropped because the sequence arrived before the due time.",
	})
	HistoryHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_history_hits_total",
		Help: "Total sender-side NACK resolutions satisfied from history.",
	})
	HistoryMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_history_misses_total",
		Help: "Total sender-side NACK resolutions that could not be satisfied.",
	})
	ReorderReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_reorder_released_total",
		Help: "Total rows released from the reorder buffer.",
	})
	ReorderDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_reorder_depth",
		Help: "Current number of entries buffered awaiting reorder release.",
	})
	ActiveDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetry_active_devices",
		Help: "Number of devices with a live tracker.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrSocketRead  = "socket_read"
	ErrSocketWrite = "socket_write"
	ErrJournal     = "journal_write"
)

// StartHTTP serves Prometheus metrics at /metrics plus a /ready endpoint.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap periodic logging without scraping.
var (
	localAccepted   uint64
	localCorrupt    uint64
	localMalformed  uint64
	localDuplicate  uint64
	localGaps       uint64
	localNacksSent  uint64
	localReorderOut uint64
	localErrors     uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Accepted   uint64
	Corrupt    uint64
	Malformed  uint64
	Duplicate  uint64
	Gaps       uint64
	NacksSent  uint64
	ReorderOut uint64
	Errors     uint64
}

func Snap() Snapshot {
	return Snapshot{
		Accepted:   atomic.LoadUint64(&localAccepted),
		Corrupt:    atomic.LoadUint64(&localCorrupt),
		Malformed:  atomic.LoadUint64(&localMalformed),
		Duplicate:  atomic.LoadUint64(&localDuplicate),
		Gaps:       atomic.LoadUint64(&localGaps),
		NacksSent:  atomic.LoadUint64(&localNacksSent),
		ReorderOut: atomic.LoadUint64(&localReorderOut),
		Errors:     atomic.LoadUint64(&localErrors),
	}
}

func IncAccepted() {
	FramesAccepted.Inc()
	atomic.AddUint64(&localAccepted, 1)
}

func IncCorrupt() {
	FramesCorrupt.Inc()
	atomic.AddUint64(&localCorrupt, 1)
}

func IncMalformed() {
	FramesMalformed.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncDuplicate() {
	DuplicateFrames.Inc()
	atomic.AddUint64(&localDuplicate, 1)
}

func AddGaps(n int) {
	if n <= 0 {
		return
	}
	SequenceGaps.Add(float64(n))
	atomic.AddUint64(&localGaps, uint64(n))
}

func IncNacksScheduled() { NacksScheduled.Inc() }

func IncNacksSent() {
	NacksSent.Inc()
	atomic.AddUint64(&localNacksSent, 1)
}

func IncNacksSuppressed() { NacksSuppressed.Inc() }

func IncHistoryHit()  { HistoryHits.Inc() }
func IncHistoryMiss() { HistoryMisses.Inc() }

func AddReorderReleased(n int) {
	if n <= 0 {
		return
	}
	ReorderReleased.Add(float64(n))
	atomic.AddUint64(&localReorderOut, uint64(n))
}

func SetReorderDepth(n int)  { ReorderDepth.Set(float64(n)) }
func SetActiveDevices(n int) { ActiveDevices.Set(float64(n)) }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrSocketRead, ErrSocketWrite, ErrJournal} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
