package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/journal"
	"github.com/RogerSalama/TinyTelemetry/internal/logging"
	"github.com/RogerSalama/TinyTelemetry/internal/wire"
)

// Collector is the functional-options orchestration type tying together
// the tracker table, NACK scheduler, reorder buffer, and receiver over one
// shared socket, analogous in shape to the teacher's server.Server.
type Collector struct {
	conn       net.PacketConn
	trackers   *TrackerTable
	nacks      *NackScheduler
	reorder    *Reorder
	receiver   *Receiver
	journal    *journal.Journal
	acc        *journal.Accumulator
	metricsCSV string
	logger     *slog.Logger

	rotators    []*journal.Rotator
	rotateEvery time.Duration

	nackSeqMu sync.Mutex
	nackSeq   uint16

	wg sync.WaitGroup
}

// Option configures a Collector before Serve.
type Option func(*collectorConfig)

type collectorConfig struct {
	addr            string
	journalPath     string
	reorderPath     string
	metricsCSVPath  string
	rotateThreshold int64
	rotateEvery     time.Duration
	nackOpts        []NackOption
	logger          *slog.Logger
}

// WithListenAddr sets the UDP listen address (":12001"-style).
func WithListenAddr(a string) Option { return func(c *collectorConfig) { c.addr = a } }

// WithJournalPath sets the per-reading journal file path.
func WithJournalPath(p string) Option { return func(c *collectorConfig) { c.journalPath = p } }

// WithReorderJournalPath sets the reordered-order journal file path.
func WithReorderJournalPath(p string) Option { return func(c *collectorConfig) { c.reorderPath = p } }

// WithMetricsPath sets the aggregate metrics record file path.
func WithMetricsPath(p string) Option { return func(c *collectorConfig) { c.metricsCSVPath = p } }

// WithRotateThreshold overrides the default per-journal-file size (in bytes)
// that triggers archival rotation (0 keeps journal.defaultRotateThreshold).
func WithRotateThreshold(bytes int64) Option {
	return func(c *collectorConfig) { c.rotateThreshold = bytes }
}

// WithRotateCheckInterval overrides how often Serve checks both journal
// files for rotation (0 disables periodic rotation entirely).
func WithRotateCheckInterval(d time.Duration) Option {
	return func(c *collectorConfig) { c.rotateEvery = d }
}

// WithNackOptions forwards options to the NackScheduler (e.g. WithNackDelay).
func WithNackOptions(opts ...NackOption) Option {
	return func(c *collectorConfig) { c.nackOpts = opts }
}

// WithCollectorLogger overrides the default global logger.
func WithCollectorLogger(l *slog.Logger) Option {
	return func(c *collectorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCollector binds the UDP socket and wires every component together.
func NewCollector(opts ...Option) (*Collector, error) {
	cfg := &collectorConfig{
		addr:           ":12001",
		journalPath:    "journal.csv",
		reorderPath:    "journal_reordered.csv",
		metricsCSVPath: "metrics.csv",
		rotateEvery:    5 * time.Minute,
		logger:         logging.L(),
	}
	for _, o := range opts {
		o(cfg)
	}

	conn, err := net.ListenPacket("udp", cfg.addr)
	if err != nil {
		return nil, fmt.Errorf("collector: listen: %w", err)
	}

	j, err := journal.Open(cfg.journalPath)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("collector: open journal: %w", err)
	}
	reorderJ, err := journal.Open(cfg.reorderPath)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("collector: open reorder journal: %w", err)
	}

	c := &Collector{
		conn:       conn,
		trackers:   NewTrackerTable(),
		reorder:    NewReorder(),
		journal:    j,
		acc:        journal.NewAccumulator(),
		metricsCSV: cfg.metricsCSVPath,
		logger:     cfg.logger,
		rotators: []*journal.Rotator{
			journal.NewRotator(cfg.journalPath, cfg.rotateThreshold),
			journal.NewRotator(cfg.reorderPath, cfg.rotateThreshold),
		},
		rotateEvery: cfg.rotateEvery,
	}
	c.nackSeq = 1
	c.nacks = NewNackScheduler(c.trackers, c.sendNack, c.logger, cfg.nackOpts...)
	c.receiver = NewReceiver(conn, c.trackers, c.nacks, c.reorder, j, reorderJ, c.acc, c.logger)
	return c, nil
}

// Addr returns the bound UDP socket address, useful for advertising the
// actual listening port when the configured address used port 0.
func (c *Collector) Addr() net.Addr { return c.conn.LocalAddr() }

func (c *Collector) nextNackSeq() uint16 {
	c.nackSeqMu.Lock()
	defer c.nackSeqMu.Unlock()
	seq := c.nackSeq
	c.nackSeq++
	return seq
}

func (c *Collector) sendNack(deviceID uint8, seq uint16, peer net.Addr) error {
	h := wire.Header{
		DeviceID:     ServerDeviceID,
		BatchCount:   1,
		Seq:          c.nextNackSeq(),
		TimestampS:   uint32(time.Now().Unix()),
		ProtoVer:     wire.ProtoVersion,
		MsgType:      wire.MsgNack,
	}
	payload := []byte(fmt.Sprintf("%d:%d", deviceID, seq))
	frame, err := wire.BuildFrame(h, payload)
	if err != nil {
		return err
	}
	_, err = c.conn.WriteTo(frame, peer)
	return err
}

// Serve starts the receiver and NACK scheduler and blocks until ctx is
// canceled, then drains the reorder buffer and writes the run's aggregate
// metrics record (spec.md §5 "Cancellation").
func (c *Collector) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.wg.Add(2)
	go func() { defer c.wg.Done(); c.receiver.Run(ctx) }()
	go func() { defer c.wg.Done(); c.nacks.Run(ctx) }()

	if c.rotateEvery > 0 {
		c.wg.Add(1)
		go func() { defer c.wg.Done(); c.runRotation(ctx) }()
	}

	<-ctx.Done()
	// Unblock the receiver's pending ReadFrom so it observes the cancellation.
	_ = c.conn.SetReadDeadline(time.Now())
	c.wg.Wait()
	return c.shutdown()
}

// runRotation periodically checks both journal files and archives whichever
// has grown past its rotation threshold (spec-note "bounded disk growth").
func (c *Collector) runRotation(ctx context.Context) {
	t := time.NewTicker(c.rotateEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for _, r := range c.rotators {
				rotated, archivePath, err := r.MaybeRotate(now)
				if err != nil {
					c.logger.Warn("journal_rotate_error", "error", err)
					continue
				}
				if rotated {
					c.logger.Info("journal_rotated", "archive", archivePath)
				}
			}
		}
	}
}

func (c *Collector) shutdown() error {
	c.receiver.Drain()
	_ = c.conn.Close()
	rec := c.acc.Finalize(time.Now())
	if err := journal.AppendMetricsRecord(c.metricsCSV, rec); err != nil {
		return fmt.Errorf("collector: write metrics record: %w", err)
	}
	return nil
}
