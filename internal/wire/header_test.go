package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{DeviceID: 0, BatchCount: 0, Seq: 1, TimestampS: 0, Milliseconds: 0, ProtoVer: 1, MsgType: MsgInit},
		{DeviceID: 15, BatchCount: 10, Seq: 65535, TimestampS: 4294967295, Milliseconds: 999, ProtoVer: 1, MsgType: MsgData},
		{DeviceID: 7, BatchCount: 2, Seq: 0, TimestampS: 123456, Milliseconds: 500, ProtoVer: 1, MsgType: MsgHeartbeat},
		{DeviceID: 1, BatchCount: 1, Seq: 42, TimestampS: 1700000000, Milliseconds: 1, ProtoVer: 1, MsgType: MsgNack},
	}
	for _, h := range cases {
		frame, err := BuildFrame(h, nil)
		if err != nil {
			t.Fatalf("BuildFrame: %v", err)
		}
		if len(frame) != HeaderSize+1 {
			t.Fatalf("frame len = %d, want %d", len(frame), HeaderSize+1)
		}
		got, payload, err := ParseFrame(frame)
		if err != nil {
			t.Fatalf("ParseFrame: %v", err)
		}
		if len(payload) != 0 {
			t.Fatalf("expected empty payload, got %d bytes", len(payload))
		}
		h.Checksum = got.Checksum // checksum is derived, not an input
		if got != h {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestHeaderChecksumCoversPayload(t *testing.T) {
	h := Header{DeviceID: 3, BatchCount: 2, Seq: 7, TimestampS: 1000, Milliseconds: 250, ProtoVer: 1, MsgType: MsgData}
	payload := []byte{1, 2, 3, 4}
	frame, err := BuildFrame(h, payload)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	var base [HeaderSize]byte
	copy(base[:], frame[:HeaderSize])
	want := ChecksumOf(base, payload)
	if frame[HeaderSize] != want {
		t.Fatalf("checksum byte = %d, want %d", frame[HeaderSize], want)
	}
}

func TestParseFrameTooShort(t *testing.T) {
	_, _, err := ParseFrame([]byte{1, 2, 3})
	if err != ErrFrameTooShort {
		t.Fatalf("got %v, want ErrFrameTooShort", err)
	}
}

func TestParseFrameUnsupportedVersion(t *testing.T) {
	h := Header{DeviceID: 1, Seq: 1, MsgType: MsgData, ProtoVer: 2}
	base := h.buildBase()
	h.Checksum = ChecksumOf(base, nil)
	hdr, _ := h.MarshalBinary()
	_, _, err := ParseFrame(hdr)
	if err == nil {
		t.Fatal("expected unsupported-version error")
	}
}

func TestParseFrameCorrupt(t *testing.T) {
	h := Header{DeviceID: 2, Seq: 5, MsgType: MsgData, ProtoVer: 1}
	frame, err := BuildFrame(h, []byte{9, 9})
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	frame[HeaderSize+1] ^= 0xFF // flip a payload byte
	_, _, err = ParseFrame(frame)
	if err == nil {
		t.Fatal("expected checksum mismatch")
	}
}

func TestBuildFrameRejectsOversizedPayload(t *testing.T) {
	h := Header{DeviceID: 1, Seq: 1, MsgType: MsgData, ProtoVer: 1}
	big := make([]byte, MaxPayload+1)
	if _, err := BuildFrame(h, big); err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
}

func FuzzParseFrame(f *testing.F) {
	h := Header{DeviceID: 4, BatchCount: 3, Seq: 9, TimestampS: 222, Milliseconds: 3, ProtoVer: 1, MsgType: MsgData}
	seed, _ := BuildFrame(h, []byte{1, 2, 3})
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _, _ = ParseFrame(data) // must not panic
	})
}
