package collector

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/journal"
	"github.com/RogerSalama/TinyTelemetry/internal/metrics"
	"github.com/RogerSalama/TinyTelemetry/internal/sensor"
	"github.com/RogerSalama/TinyTelemetry/internal/wire"
)

// ServerDeviceID is the fixed server identity used as the device_id field
// of outgoing NACK frames (spec.md §4.3 "NACK scheduler").
const ServerDeviceID uint8 = 0

// Receiver owns the collector's shared socket: it decodes inbound
// datagrams, validates them, routes by message class, updates the tracker
// table, journals rows, pushes into the reorder buffer, and schedules
// NACKs for gaps (spec.md §4.3, §5).
type Receiver struct {
	conn           net.PacketConn
	trackers       *TrackerTable
	nacks          *NackScheduler
	reorder        *Reorder
	journal        *journal.Journal
	reorderJournal *journal.Journal // rows, in origin order, released by Reorder
	acc            *journal.Accumulator
	logger         *slog.Logger

	unitNames map[uint8]string // device_id -> unit name, populated on INIT
}

// NewReceiver wires together a Receiver's dependencies. reorderJournal may
// be nil if the reordered-order log is not wanted.
func NewReceiver(conn net.PacketConn, trackers *TrackerTable, nacks *NackScheduler, reorder *Reorder, j, reorderJournal *journal.Journal, acc *journal.Accumulator, logger *slog.Logger) *Receiver {
	return &Receiver{
		conn:           conn,
		trackers:       trackers,
		nacks:          nacks,
		reorder:        reorder,
		journal:        j,
		reorderJournal: reorderJournal,
		acc:            acc,
		logger:         logger,
		unitNames:      make(map[uint8]string),
	}
}

// Run blocks reading datagrams until ctx is canceled. Read errors while ctx
// is still live are counted and logged, and the loop keeps reading.
func (r *Receiver) Run(ctx context.Context) {
	buf := make([]byte, wire.FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.IncError(metrics.ErrSocketRead)
			r.logger.Warn("collector_read_error", "error", err)
			continue
		}
		start := time.Now()
		r.handleDatagram(append([]byte(nil), buf[:n]...), addr, start)
	}
}

func (r *Receiver) handleDatagram(data []byte, addr net.Addr, arrival time.Time) {
	h, payload, err := wire.ParseFrame(data)
	if err != nil {
		switch {
		case errors.Is(err, wire.ErrCorrupt):
			metrics.IncCorrupt()
		default:
			metrics.IncMalformed()
		}
		return
	}

	// Admission: the first frame from a device MUST be INIT.
	if _, ok := r.trackers.Get(h.DeviceID); !ok && h.MsgType != wire.MsgInit {
		r.nacks.Schedule(h.DeviceID, 1, addr)
		return
	}

	switch h.MsgType {
	case wire.MsgInit:
		r.handleInit(h, addr, data, arrival)
	case wire.MsgData:
		r.handleData(h, payload, addr, data, arrival)
	case wire.MsgHeartbeat:
		r.handleHeartbeat(h, addr, data, arrival)
	case wire.MsgNack:
		// NACKs are destined for senders, not the collector; ignore.
	}
}

func (r *Receiver) handleInit(h wire.Header, addr net.Addr, raw []byte, arrival time.Time) {
	r.trackers.Init(h.DeviceID, h.Seq)
	r.unitNames[h.DeviceID] = sensor.UnitName(h.BatchCount)
	metrics.IncAccepted()
	metrics.SetActiveDevices(r.trackers.Len())
	r.acc.RecordAcceptedFrame()

	row := r.buildRow(h, 0, nil, addr, raw, arrival, false, false)
	row.UnitName = r.unitNames[h.DeviceID]
	row.MsgType = "INIT"
	r.journalAndBuffer(row, arrival)
}

func (r *Receiver) handleHeartbeat(h wire.Header, addr net.Addr, raw []byte, arrival time.Time) {
	metrics.IncAccepted()
	r.acc.RecordAcceptedFrame()
	row := r.buildRow(h, 0, nil, addr, raw, arrival, false, false)
	row.MsgType = "HEARTBEAT"
	r.journalAndBuffer(row, arrival)
}

func (r *Receiver) handleData(h wire.Header, payload []byte, addr net.Addr, raw []byte, arrival time.Time) {
	tracker, _ := r.trackers.Get(h.DeviceID)
	class, newlyMissing := tracker.Classify(h.Seq)
	gapFlag := class == Gap
	duplicateFlag := class == Duplicate

	if gapFlag {
		metrics.AddGaps(len(newlyMissing))
		r.acc.RecordGaps(len(newlyMissing))
		for _, m := range newlyMissing {
			r.nacks.Schedule(h.DeviceID, m, addr)
		}
	}

	values, decodeErr := wire.DecodeBatch(wire.XOR(payload, h.DeviceID, h.Seq), int(h.BatchCount))
	cpuMicros := time.Since(arrival).Microseconds()

	if duplicateFlag {
		metrics.IncDuplicate()
		r.acc.RecordDuplicate()
		if err := r.journal.MarkDuplicate(h.DeviceID, h.Seq); err != nil {
			metrics.IncError(metrics.ErrJournal)
			r.logger.Warn("journal_mark_duplicate_error", "device_id", h.DeviceID, "seq", h.Seq, "error", err)
		}
		return
	}

	metrics.IncAccepted()
	r.acc.RecordAccepted(len(raw), cpuMicros)
	r.recordInterval(h)

	if decodeErr != nil {
		row := r.buildRow(h, 0, nil, addr, raw, arrival, false, gapFlag)
		row.MsgType = "DATA"
		row.CPUMicros = cpuMicros
		r.journalAndBuffer(row, arrival)
		return
	}
	for i, v := range values {
		v := v
		row := r.buildRow(h, i+1, &v, addr, raw, arrival, false, gapFlag)
		row.MsgType = "DATA"
		row.CPUMicros = cpuMicros
		r.journalAndBuffer(row, arrival)
	}
}

func (r *Receiver) recordInterval(h wire.Header) {
	tracker, _ := r.trackers.Get(h.DeviceID)
	tsMs := int64(h.TimestampS)*1000 + int64(h.Milliseconds)
	if tracker.LastDataTsMs != nil && tsMs > *tracker.LastDataTsMs {
		r.acc.RecordInterval(tsMs - *tracker.LastDataTsMs)
	}
	tracker.LastDataTsMs = &tsMs
}

func (r *Receiver) buildRow(h wire.Header, readingIndex int, reading *float64, addr net.Addr, raw []byte, arrival time.Time, duplicate, gap bool) journal.Row {
	return journal.Row{
		ArrivalTime:   arrival,
		DeviceID:      h.DeviceID,
		BatchCount:    h.BatchCount,
		Seq:           h.Seq,
		SenderTimeS:   h.TimestampS,
		SenderMillis:  h.Milliseconds,
		ReadingIndex:  readingIndex,
		Reading:       reading,
		PeerAddr:      addr.String(),
		DelaySeconds:  time.Since(time.Unix(int64(h.TimestampS), int64(h.Milliseconds)*int64(time.Millisecond))).Seconds(),
		DuplicateFlag: duplicate,
		GapFlag:       gap,
		ByteLength:    len(raw),
	}
}

func (r *Receiver) journalAndBuffer(row journal.Row, arrival time.Time) {
	if err := r.journal.Append(row); err != nil {
		metrics.IncError(metrics.ErrJournal)
		r.logger.Warn("journal_append_error", "error", err)
	}
	r.reorder.Push(row, arrival.UnixMilli())
	ready := r.reorder.FlushReady(time.Now().UnixMilli())
	metrics.AddReorderReleased(len(ready))
	metrics.SetReorderDepth(r.reorder.Depth())
	if r.reorderJournal != nil && len(ready) > 0 {
		if err := r.reorderJournal.Append(ready...); err != nil {
			metrics.IncError(metrics.ErrJournal)
			r.logger.Warn("reorder_journal_append_error", "error", err)
		}
	}
}

// Drain flushes any remaining reorder buffer entries to the reordered
// journal, used during Collector shutdown (spec.md §5 "Cancellation").
func (r *Receiver) Drain() {
	remaining := r.reorder.FlushAll()
	if r.reorderJournal != nil && len(remaining) > 0 {
		if err := r.reorderJournal.Append(remaining...); err != nil {
			r.logger.Warn("reorder_journal_drain_error", "error", err)
		}
	}
}
