package wire

import "errors"

// Sentinel frame errors, classified per spec.md §4.1/§7.
var (
	// ErrFrameTooShort is returned when a datagram is shorter than the
	// fixed 10-byte header.
	ErrFrameTooShort = errors.New("wire: frame too short")
	// ErrUnsupportedFrame is returned for unknown msg_type, proto_version
	// other than 1, or an encode that would exceed the size bound.
	ErrUnsupportedFrame = errors.New("wire: unsupported frame")
	// ErrCorrupt is returned on checksum mismatch.
	ErrCorrupt = errors.New("wire: checksum mismatch")
	// ErrPayloadTruncated is returned when the batch payload decoder runs
	// out of bytes before decoding the declared sample count.
	ErrPayloadTruncated = errors.New("wire: payload truncated")
)
