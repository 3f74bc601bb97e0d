package sender

import (
	"context"
	"time"
)

// defaultHeartbeatInterval matches spec.md §4.2/§5: the heartbeat task
// wakes every 10 s.
const defaultHeartbeatInterval = 10 * time.Second

// runHeartbeat emits one HEARTBEAT frame per active sensor on each tick,
// mirroring the teacher's ticker-goroutine shape (cmd/can-server's
// metrics_logger.go periodic loop).
func (s *Sender) runHeartbeat(ctx context.Context) {
	t := time.NewTicker(s.heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.emitHeartbeats()
		}
	}
}

func (s *Sender) emitHeartbeats() {
	s.mu.RLock()
	ids := make([]uint8, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	for _, id := range ids {
		frame, err := buildHeartbeatFrame(id, now)
		if err != nil {
			s.logger.Warn("heartbeat_build_error", "device_id", id, "error", err)
			continue
		}
		if err := s.transmit(frame); err != nil {
			s.logger.Warn("heartbeat_send_error", "device_id", id, "error", err)
		}
	}
}
