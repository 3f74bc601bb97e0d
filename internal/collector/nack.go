package collector

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/metrics"
)

// DefaultNackDelay is the production default NACK schedule delay. The
// source carried two conflicting constants (0.1s and 0.35s); this spec
// resolves in favor of the 100ms value while keeping the 350ms variant
// reachable via WithNackDelay.
const DefaultNackDelay = 100 * time.Millisecond

// ConservativeNackDelay is the 350ms variant observed in one source file.
const ConservativeNackDelay = 350 * time.Millisecond

// nackTickInterval is the scheduler wake cadence (spec.md §4.3/§5: "wakes
// frequently (≤ 50 ms granularity)").
const nackTickInterval = 50 * time.Millisecond

type nackKey struct {
	deviceID uint8
	seq      uint16
}

type scheduleRequest struct {
	key  nackKey
	peer net.Addr
}

// SendNackFunc transmits one NACK frame to peer for (deviceID, seq).
type SendNackFunc func(deviceID uint8, seq uint16, peer net.Addr) error

// NackScheduler implements spec.md §4.3's delayed NACK scheduler: gap
// detections enqueue a schedule request over a bounded channel (the
// design note's "message passing ... bounded channel"); a single loop
// coalesces duplicate requests into a due-time map and, on each tick,
// emits NACKs for requests still outstanding at their due time.
type NackScheduler struct {
	tracker *TrackerTable
	send    SendNackFunc
	delay   time.Duration
	logger  *slog.Logger

	requests chan scheduleRequest
}

// NackOption configures a NackScheduler.
type NackOption func(*NackScheduler)

// WithNackDelay overrides the default 100ms schedule delay.
func WithNackDelay(d time.Duration) NackOption {
	return func(s *NackScheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithNackLogger overrides the default logger.
func WithNackLogger(l *slog.Logger) NackOption {
	return func(s *NackScheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewNackScheduler builds a scheduler over tracker, emitting NACKs via send.
func NewNackScheduler(tracker *TrackerTable, send SendNackFunc, logger *slog.Logger, opts ...NackOption) *NackScheduler {
	s := &NackScheduler{
		tracker:  tracker,
		send:     send,
		delay:    DefaultNackDelay,
		logger:   logger,
		requests: make(chan scheduleRequest, 256),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule enqueues a NACK request for (deviceID, seq). Non-blocking: a
// full queue drops the request rather than stalling the receiver, since a
// later gap detection or retransmission will naturally re-surface it.
func (s *NackScheduler) Schedule(deviceID uint8, seq uint16, peer net.Addr) {
	metrics.IncNacksScheduled()
	select {
	case s.requests <- scheduleRequest{key: nackKey{deviceID, seq}, peer: peer}:
	default:
		s.logger.Warn("nack_schedule_queue_full", "device_id", deviceID, "seq", seq)
	}
}

// Run drives the coalescing due-time map and periodic due-check tick
// until ctx is canceled.
func (s *NackScheduler) Run(ctx context.Context) {
	due := make(map[nackKey]scheduleEntry)
	ticker := time.NewTicker(nackTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			if _, exists := due[req.key]; !exists {
				due[req.key] = scheduleEntry{peer: req.peer, dueAt: time.Now().Add(s.delay)}
			}
		case now := <-ticker.C:
			s.tick(now, due)
		}
	}
}

type scheduleEntry struct {
	peer  net.Addr
	dueAt time.Time
}

func (s *NackScheduler) tick(now time.Time, due map[nackKey]scheduleEntry) {
	for key, entry := range due {
		if now.Before(entry.dueAt) {
			continue
		}
		delete(due, key)
		if !s.tracker.IsMissing(key.deviceID, key.seq) {
			metrics.IncNacksSuppressed()
			continue
		}
		if err := s.send(key.deviceID, key.seq, entry.peer); err != nil {
			s.logger.Warn("nack_send_error", "device_id", key.deviceID, "seq", key.seq, "error", err)
			continue
		}
		metrics.IncNacksSent()
	}
}
