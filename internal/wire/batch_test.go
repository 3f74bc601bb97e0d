package wire

import (
	"math"
	"testing"
)

func TestBatchRoundTripNarrow(t *testing.T) {
	values := []float64{21.5, -3.25, 0, 1000.000001, 99.999999}
	enc, err := EncodeBatch(values)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	dec, err := DecodeBatch(enc, len(values))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	for i := range values {
		if math.Abs(dec[i]-values[i]) > 1e-6 {
			t.Fatalf("index %d: got %v want %v", i, dec[i], values[i])
		}
	}
}

func TestBatchRoundTripWide(t *testing.T) {
	// These overflow int32 once scaled by 1e6 and must take the 8-byte path.
	values := []float64{1e13, -1e13, 3.0e12, 42.5}
	enc, err := EncodeBatch(values)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if enc[0] != 3 { // three of the four values are wide
		t.Fatalf("flag_count = %d, want 3", enc[0])
	}
	dec, err := DecodeBatch(enc, len(values))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if dec[0] != values[0] || dec[1] != values[1] || dec[2] != values[2] {
		t.Fatalf("wide values must decode exactly: got %v want %v", dec, values)
	}
	if math.Abs(dec[3]-values[3]) > 1e-6 {
		t.Fatalf("narrow value index 3: got %v want %v", dec[3], values[3])
	}
}

func TestBatchSizeBound(t *testing.T) {
	if _, err := EncodeBatch(nil); err == nil {
		t.Fatal("expected error for 0 samples")
	}
	values := make([]float64, MaxBatchSamples+1)
	if _, err := EncodeBatch(values); err == nil {
		t.Fatal("expected error for >10 samples")
	}
}

func TestBatchFrameFitsWithinFrameSize(t *testing.T) {
	values := make([]float64, MaxBatchSamples)
	for i := range values {
		values[i] = 1e13 + float64(i) // force every sample wide: worst case size
	}
	payload, err := EncodeBatch(values)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	h := Header{DeviceID: 1, BatchCount: uint8(len(values)), Seq: 2, MsgType: MsgData, ProtoVer: 1}
	frame, err := BuildFrame(h, payload)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	if len(frame) > FrameSize {
		t.Fatalf("frame size %d exceeds max %d", len(frame), FrameSize)
	}
}

func TestDecodeBatchTruncated(t *testing.T) {
	if _, err := DecodeBatch([]byte{0, 1, 2}, 3); err != ErrPayloadTruncated {
		t.Fatalf("got %v, want ErrPayloadTruncated", err)
	}
}

func FuzzDecodeBatch(f *testing.F) {
	enc, _ := EncodeBatch([]float64{1, 2, 3})
	f.Add(enc, 3)
	f.Fuzz(func(t *testing.T, data []byte, n int) {
		if n < 1 {
			n = 1
		}
		if n > MaxBatchSamples {
			n = MaxBatchSamples
		}
		_, _ = DecodeBatch(data, n) // must not panic
	})
}
