// Package wire implements the TinyTelemetry datagram framing: a 10-byte
// bit-packed header, its checksum, the XOR keystream used for payload
// obfuscation, and the batch payload codec. Stateless, safe for concurrent
// use.
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the length in bytes of the base header, everything except
// the trailing checksum byte; a full header is HeaderSize+1 = 10 bytes.
const HeaderSize = 9

// FrameSize is the maximum allowed size, header included, of one datagram.
const FrameSize = 200

// MaxPayload is the largest payload that still fits within FrameSize.
const MaxPayload = FrameSize - HeaderSize - 1 // -1 for the trailing checksum byte

// ProtoVersion is the only protocol version this codec understands.
const ProtoVersion = 1

// MsgType is the closed four-variant message-class enum.
type MsgType uint8

const (
	MsgInit MsgType = iota
	MsgData
	MsgHeartbeat
	MsgNack
)

func (m MsgType) String() string {
	switch m {
	case MsgInit:
		return "INIT"
	case MsgData:
		return "DATA"
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgNack:
		return "NACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// Header is the 10-byte fixed frame header (9 base bytes + 1 checksum byte).
type Header struct {
	DeviceID    uint8 // 4 bits, 0..15
	BatchCount  uint8 // 4 bits; DATA: reading count; INIT: unit code; HEARTBEAT: 0; NACK: 1
	Seq         uint16
	TimestampS  uint32
	Milliseconds uint16 // 0..999
	ProtoVer    uint8   // 2 bits
	MsgType     MsgType // 2 bits
	Checksum    uint8
}

// buildBase packs the header's first 9 bytes (base header, no checksum) per
// the layout in spec.md §3. The checksum byte is computed separately by the
// caller once the payload is known (see ChecksumOf) and assigned to
// h.Checksum before calling MarshalBinary.
func (h Header) buildBase() [HeaderSize]byte {
	var b [HeaderSize]byte
	b[0] = (h.DeviceID&0x0F)<<4 | (h.BatchCount & 0x0F)
	binary.BigEndian.PutUint16(b[1:3], h.Seq)
	binary.BigEndian.PutUint32(b[3:7], h.TimestampS)
	msHigh := uint8((h.Milliseconds >> 8) & 0x03)
	msLow := uint8(h.Milliseconds & 0xFF)
	b[7] = (h.ProtoVer&0x03)<<6 | (uint8(h.MsgType)&0x03)<<4 | msHigh
	b[8] = msLow
	return b
}

// MarshalBinary renders the full 10-byte header (base + checksum).
func (h Header) MarshalBinary() ([]byte, error) {
	base := h.buildBase()
	out := make([]byte, HeaderSize+1)
	copy(out, base[:])
	out[HeaderSize] = h.Checksum
	return out, nil
}

// UnmarshalHeader parses a 10-byte header from data. It does not validate
// the checksum; callers must do so against the accompanying payload.
func UnmarshalHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize+1 {
		return Header{}, ErrFrameTooShort
	}
	byte0 := data[0]
	seq := binary.BigEndian.Uint16(data[1:3])
	ts := binary.BigEndian.Uint32(data[3:7])
	byte7 := data[7]
	msLow := data[8]

	h := Header{
		DeviceID:     (byte0 >> 4) & 0x0F,
		BatchCount:   byte0 & 0x0F,
		Seq:          seq,
		TimestampS:   ts,
		ProtoVer:     (byte7 >> 6) & 0x03,
		MsgType:      MsgType((byte7 >> 4) & 0x03),
		Milliseconds: uint16(byte7&0x03)<<8 | uint16(msLow),
		Checksum:     data[HeaderSize],
	}
	if h.ProtoVer != ProtoVersion {
		return Header{}, fmt.Errorf("%w: proto_version=%d", ErrUnsupportedFrame, h.ProtoVer)
	}
	switch h.MsgType {
	case MsgInit, MsgData, MsgHeartbeat, MsgNack:
	default:
		return Header{}, fmt.Errorf("%w: msg_type=%d", ErrUnsupportedFrame, h.MsgType)
	}
	return h, nil
}

// ChecksumOf computes the single checksum byte: the sum, modulo 256, of the
// 9-byte base header concatenated with the (already obfuscated) payload.
func ChecksumOf(base [HeaderSize]byte, payload []byte) byte {
	var sum byte
	for _, b := range base {
		sum += b
	}
	for _, b := range payload {
		sum += b
	}
	return sum
}

// BuildFrame assembles a complete wire frame: header (with checksum
// computed over base+payload) followed by payload bytes. It fails if the
// resulting frame would exceed FrameSize.
func BuildFrame(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload %d exceeds max %d", ErrUnsupportedFrame, len(payload), MaxPayload)
	}
	base := h.buildBase()
	h.Checksum = ChecksumOf(base, payload)
	hdr, _ := h.MarshalBinary()
	frame := make([]byte, 0, len(hdr)+len(payload))
	frame = append(frame, hdr...)
	frame = append(frame, payload...)
	if len(frame) > FrameSize {
		return nil, fmt.Errorf("%w: frame %d exceeds max %d", ErrUnsupportedFrame, len(frame), FrameSize)
	}
	return frame, nil
}

// ParseFrame splits and validates a received datagram: parses the header,
// verifies frame size and checksum, and returns the header plus the raw
// (still obfuscated, for DATA frames) payload bytes.
func ParseFrame(data []byte) (Header, []byte, error) {
	if len(data) > FrameSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes", ErrUnsupportedFrame, len(data))
	}
	if len(data) < HeaderSize+1 {
		return Header{}, nil, ErrFrameTooShort
	}
	h, err := UnmarshalHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	payload := data[HeaderSize+1:]
	var base [HeaderSize]byte
	copy(base[:], data[:HeaderSize])
	want := ChecksumOf(base, payload)
	if want != h.Checksum {
		return Header{}, nil, fmt.Errorf("%w: want %d got %d", ErrCorrupt, want, h.Checksum)
	}
	return h, payload, nil
}
