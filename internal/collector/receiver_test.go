package collector

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/RogerSalama/TinyTelemetry/internal/journal"
	"github.com/RogerSalama/TinyTelemetry/internal/wire"
)

func buildTestInit(deviceID uint8, unitCode uint8, seq uint16) []byte {
	h := wire.Header{DeviceID: deviceID, BatchCount: unitCode, Seq: seq, ProtoVer: wire.ProtoVersion, MsgType: wire.MsgInit}
	frame, _ := wire.BuildFrame(h, nil)
	return frame
}

func buildTestData(deviceID uint8, seq uint16, values []float64) []byte {
	plain, _ := wire.EncodeBatch(values)
	obfuscated := wire.XOR(plain, deviceID, seq)
	h := wire.Header{DeviceID: deviceID, BatchCount: uint8(len(values)), Seq: seq, ProtoVer: wire.ProtoVersion, MsgType: wire.MsgData}
	frame, _ := wire.BuildFrame(h, obfuscated)
	return frame
}

func TestReceiverHappyPath(t *testing.T) {
	dir := t.TempDir()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer client.Close()

	j, err := journal.Open(filepath.Join(dir, "journal.csv"))
	if err != nil {
		t.Fatalf("Open journal: %v", err)
	}
	rj, err := journal.Open(filepath.Join(dir, "reordered.csv"))
	if err != nil {
		t.Fatalf("Open reorder journal: %v", err)
	}
	tt := NewTrackerTable()
	reorder := NewReorder()
	acc := journal.NewAccumulator()
	var sentNacks []uint16
	nacks := NewNackScheduler(tt, func(deviceID uint8, seq uint16, peer net.Addr) error {
		sentNacks = append(sentNacks, seq)
		return nil
	}, slog.Default())
	recv := NewReceiver(conn, tt, nacks, reorder, j, rj, acc, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go recv.Run(ctx)
	go nacks.Run(ctx)
	defer cancel()

	send := func(frame []byte) {
		if _, err := client.WriteTo(frame, conn.LocalAddr()); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	send(buildTestInit(1, 2, 1))
	time.Sleep(30 * time.Millisecond)
	for seq := uint16(2); seq <= 6; seq++ {
		send(buildTestData(1, seq, []float64{1, 2, 3, 4, 5}))
	}
	time.Sleep(80 * time.Millisecond)

	tr, ok := tt.Get(1)
	if !ok {
		t.Fatal("expected tracker for device 1")
	}
	if tr.HighestSeq != 6 {
		t.Fatalf("HighestSeq = %d, want 6", tr.HighestSeq)
	}
	if len(tr.MissingSet) != 0 {
		t.Fatalf("MissingSet = %v, want empty", tr.MissingSet)
	}
	if acc.Finalize(time.Now()).PacketsReceived != 6 {
		t.Fatalf("PacketsReceived = %d, want 6", acc.Finalize(time.Now()).PacketsReceived)
	}
}

func TestReceiverGapSchedulesNack(t *testing.T) {
	dir := t.TempDir()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	client, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer client.Close()

	j, _ := journal.Open(filepath.Join(dir, "journal.csv"))
	rj, _ := journal.Open(filepath.Join(dir, "reordered.csv"))
	tt := NewTrackerTable()
	reorder := NewReorder()
	acc := journal.NewAccumulator()
	nacks := NewNackScheduler(tt, func(deviceID uint8, seq uint16, peer net.Addr) error { return nil }, slog.Default(), WithNackDelay(10*time.Millisecond))
	recv := NewReceiver(conn, tt, nacks, reorder, j, rj, acc, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	go recv.Run(ctx)
	go nacks.Run(ctx)
	defer cancel()

	send := func(frame []byte) { client.WriteTo(frame, conn.LocalAddr()) }
	send(buildTestInit(1, 2, 1))
	time.Sleep(20 * time.Millisecond)
	send(buildTestData(1, 2, []float64{1, 2, 3}))
	send(buildTestData(1, 4, []float64{1, 2, 3})) // gap at seq=3
	time.Sleep(50 * time.Millisecond)

	tr, _ := tt.Get(1)
	if !tr.IsMissing(3) {
		t.Fatal("expected seq=3 still recorded as missing")
	}
}
