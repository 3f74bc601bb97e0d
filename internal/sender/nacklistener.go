package sender

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/metrics"
	"github.com/RogerSalama/TinyTelemetry/internal/wire"
)

// nackPollTimeout is the 1 s receive poll per spec.md §4.2/§5.
const nackPollTimeout = 1 * time.Second

const (
	rxBackoffMin = 50 * time.Millisecond
	rxBackoffMax = 2 * time.Second
)

// runNackListener polls the shared socket for inbound NACK datagrams and
// resolves them, following the teacher's backoff pattern for repeated
// transient read errors (cmd/can-server/backend_serial.go).
func (s *Sender) runNackListener(ctx context.Context) {
	buf := make([]byte, wire.FrameSize)
	backoff := rxBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(nackPollTimeout))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				backoff = rxBackoffMin
				continue
			}
			if isClosedConnError(err) {
				return
			}
			metrics.IncError(metrics.ErrSocketRead)
			s.logger.Warn("sender_read_error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
			continue
		}
		backoff = rxBackoffMin
		s.handleInbound(buf[:n], addr)
	}
}

func isClosedConnError(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

func (s *Sender) handleInbound(data []byte, addr net.Addr) {
	h, payload, err := wire.ParseFrame(data)
	if err != nil {
		return // not a valid frame: ignore, not a fatal condition for the sender
	}
	if h.MsgType != wire.MsgNack {
		return
	}
	deviceID, missingSeq, ok := parseNackPayload(payload)
	if !ok {
		return
	}
	s.resolveNack(deviceID, missingSeq, addr)
}

// parseNackPayload reads the ASCII "<device_id>:<missing_seq>" NACK body
// (spec.md §6).
func parseNackPayload(payload []byte) (deviceID uint8, missingSeq uint16, ok bool) {
	parts := strings.SplitN(string(payload), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	d, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	sq, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return uint8(d), uint16(sq), true
}

// resolveNack implements spec.md §4.2 "NACK handling" steps 1-3.
func (s *Sender) resolveNack(deviceID uint8, missingSeq uint16, addr net.Addr) {
	if frame, found := s.history.Get(deviceID, missingSeq); found {
		metrics.IncHistoryHit()
		if err := s.transmit(frame); err != nil {
			s.logger.Warn("nack_retransmit_error", "device_id", deviceID, "seq", missingSeq, "error", err)
		}
		return
	}
	if missingSeq == 1 {
		s.mu.RLock()
		st, ok := s.states[deviceID]
		s.mu.RUnlock()
		if !ok {
			metrics.IncHistoryMiss()
			s.logger.Warn("nack_unknown_device", "device_id", deviceID)
			return
		}
		st.ResetAfterReinit()
		frame, _, err := buildInitFrame(st, s.clock.Now())
		if err != nil {
			s.logger.Warn("nack_reinit_build_error", "device_id", deviceID, "error", err)
			return
		}
		s.history.PurgeDevice(deviceID)
		if err := s.transmit(frame); err != nil {
			s.logger.Warn("nack_reinit_send_error", "device_id", deviceID, "error", err)
			return
		}
		s.history.Put(deviceID, 1, frame)
		return
	}
	metrics.IncHistoryMiss()
	s.logger.Info("nack_unsatisfiable", "device_id", deviceID, "seq", missingSeq)
}
