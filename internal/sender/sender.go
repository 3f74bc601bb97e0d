// Package sender implements the sender half of the telemetry protocol:
// per-device sequencing, batching, obfuscation, retransmission history,
// heartbeats, and interval pacing (spec.md §4.2). Structure follows the
// teacher's internal/server.Server functional-options shape.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/logging"
	"github.com/RogerSalama/TinyTelemetry/internal/sensor"
	"github.com/RogerSalama/TinyTelemetry/internal/txqueue"
)

const defaultTxQueueSize = 64

// Sender coordinates pacing, heartbeats, and NACK handling for a set of
// configured sensors, all multiplexed over one datagram socket.
type Sender struct {
	mu     sync.RWMutex
	states map[uint8]*State

	conn          net.PacketConn
	collectorAddr net.Addr
	history       *History
	tx            *txqueue.AsyncTx

	schedules         []Schedule
	heartbeatInterval time.Duration
	historyCapacity   int

	clock  Clock
	logger *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Sender before Init/Run.
type Option func(*Sender)

// WithConn sets the shared datagram socket.
func WithConn(c net.PacketConn) Option { return func(s *Sender) { s.conn = c } }

// WithCollectorAddr sets the destination address for outbound frames.
func WithCollectorAddr(a net.Addr) Option { return func(s *Sender) { s.collectorAddr = a } }

// WithSchedules sets the pacing phases run by Run.
func WithSchedules(sch []Schedule) Option { return func(s *Sender) { s.schedules = sch } }

// WithHeartbeatInterval overrides the default 10s heartbeat period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

// WithHistoryCapacity overrides the default retransmission history size.
func WithHistoryCapacity(n int) Option {
	return func(s *Sender) {
		if n > 0 {
			s.historyCapacity = n
		}
	}
}

// WithClock injects a deterministic Clock for tests.
func WithClock(c Clock) Option {
	return func(s *Sender) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger overrides the default global logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSender builds a Sender for the given set of sensor descriptors.
func NewSender(descriptors []sensor.Descriptor, opts ...Option) (*Sender, error) {
	s := &Sender{
		states:            make(map[uint8]*State, len(descriptors)),
		heartbeatInterval: defaultHeartbeatInterval,
		historyCapacity:   defaultHistoryCapacity,
		clock:             SystemClock,
		logger:            logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	h, err := NewHistory(s.historyCapacity)
	if err != nil {
		return nil, fmt.Errorf("sender: build history: %w", err)
	}
	s.history = h
	for _, d := range descriptors {
		s.states[d.DeviceID] = NewState(d)
	}
	if s.conn == nil {
		return nil, fmt.Errorf("sender: WithConn is required")
	}
	if s.collectorAddr == nil {
		return nil, fmt.Errorf("sender: WithCollectorAddr is required")
	}
	s.tx = txqueue.New(context.Background(), defaultTxQueueSize, s.rawSend, txqueue.Hooks{
		OnError: func(err error) { s.logger.Warn("sender_send_error", "error", err) },
	})
	return s, nil
}

func (s *Sender) rawSend(frame []byte) error {
	_, err := s.conn.WriteTo(frame, s.collectorAddr)
	return err
}

// transmit funnels a frame through the async tx queue so pacer, heartbeat,
// and retransmits share one non-blocking writer (spec.md §4.2 "Transmit").
func (s *Sender) transmit(frame []byte) error {
	return s.tx.Send(frame)
}

// Init sends one INIT frame per configured device, recording each in
// history and advancing next_seq to 2 (spec.md §4.2 "Initialization").
func (s *Sender) Init() error {
	s.mu.RLock()
	states := make([]*State, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	for _, st := range states {
		frame, seq, err := buildInitFrame(st, now)
		if err != nil {
			return fmt.Errorf("sender: build init for device %d: %w", st.Descriptor.DeviceID, err)
		}
		if err := s.transmit(frame); err != nil {
			return fmt.Errorf("sender: send init for device %d: %w", st.Descriptor.DeviceID, err)
		}
		s.history.Put(st.Descriptor.DeviceID, seq, frame)
	}
	return nil
}

// Run starts the heartbeat and NACK listener background tasks, then drives
// each configured pacing schedule in turn until ctx is canceled or every
// schedule completes (spec.md §4.2 "Pacing", §5).
func (s *Sender) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.wg.Add(2)
	go func() { defer s.wg.Done(); s.runHeartbeat(ctx) }()
	go func() { defer s.wg.Done(); s.runNackListener(ctx) }()

	for _, sch := range s.schedules {
		if err := s.runSchedule(ctx, sch); err != nil {
			cancel()
			s.wg.Wait()
			return err
		}
	}
	cancel()
	s.wg.Wait()
	return nil
}

func (s *Sender) runSchedule(ctx context.Context, sch Schedule) error {
	pacer := NewPacer(sch.Interval)
	deadline := s.clock.Now().Add(sch.Duration)
	for s.clock.Now().Before(deadline) {
		if err := pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.sendOneRound(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) sendOneRound() error {
	s.mu.RLock()
	states := make([]*State, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	for _, st := range states {
		frame, seq, err := buildDataFrame(st, now)
		if err != nil {
			s.logger.Warn("data_build_error", "device_id", st.Descriptor.DeviceID, "error", err)
			continue
		}
		if err := s.transmit(frame); err != nil {
			s.logger.Warn("data_send_error", "device_id", st.Descriptor.DeviceID, "seq", seq, "error", err)
			continue
		}
		s.history.Put(st.Descriptor.DeviceID, seq, frame)
	}
	return nil
}

// Shutdown stops the background tasks and closes the shared socket.
func (s *Sender) Shutdown() {
	s.tx.Close()
	_ = s.conn.Close()
}
