package collector

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"
)

func TestNackSchedulerSuppressesResolvedSeq(t *testing.T) {
	tt := NewTrackerTable()
	tt.Init(1, 1)
	tr, _ := tt.Get(1)
	tr.MissingSet[5] = struct{}{}

	var mu sync.Mutex
	var sent []uint16
	send := func(deviceID uint8, seq uint16, peer net.Addr) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, seq)
		return nil
	}
	sched := NewNackScheduler(tt, send, slog.Default(), WithNackDelay(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:9999")
	sched.Schedule(1, 5, addr)

	// Resolve seq=5 before the delay elapses: should be suppressed.
	delete(tr.MissingSet, 5)

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 0 {
		t.Fatalf("expected no NACK sent for a resolved seq, got %v", sent)
	}
}

func TestNackSchedulerSendsForStillMissingSeq(t *testing.T) {
	tt := NewTrackerTable()
	tt.Init(1, 1)
	tr, _ := tt.Get(1)
	tr.MissingSet[7] = struct{}{}

	var mu sync.Mutex
	var sent []uint16
	send := func(deviceID uint8, seq uint16, peer net.Addr) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, seq)
		return nil
	}
	sched := NewNackScheduler(tt, send, slog.Default(), WithNackDelay(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:9999")
	sched.Schedule(1, 7, addr)

	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 || sent[0] != 7 {
		t.Fatalf("sent = %v, want [7]", sent)
	}
}

func TestNackSchedulerCoalescesDuplicateRequests(t *testing.T) {
	tt := NewTrackerTable()
	tt.Init(1, 1)
	tr, _ := tt.Get(1)
	tr.MissingSet[3] = struct{}{}

	var mu sync.Mutex
	var sent []uint16
	send := func(deviceID uint8, seq uint16, peer net.Addr) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, seq)
		return nil
	}
	sched := NewNackScheduler(tt, send, slog.Default(), WithNackDelay(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:9999")
	sched.Schedule(1, 3, addr)
	sched.Schedule(1, 3, addr)
	sched.Schedule(1, 3, addr)

	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one coalesced NACK, got %v", sent)
	}
}
