package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxBatchSamples is the largest number of readings one DATA frame may
// carry (batch_count is a 4-bit field restricted to 1..10 by the spec).
const MaxBatchSamples = 10

const (
	narrowScale  = 1_000_000
	int32Min     = -2147483648
	int32Max     = 2147483647
)

// EncodeBatch packs n (1..10) numeric samples into the wire's
// value-adaptive payload format: a flag-count byte, that many 1-based
// wide-sample indices, then each sample in original order as either a
// big-endian int32 (scaled by 1e6) or a big-endian float64.
func EncodeBatch(values []float64) ([]byte, error) {
	n := len(values)
	if n < 1 || n > MaxBatchSamples {
		return nil, fmt.Errorf("%w: batch size %d out of range 1..%d", ErrUnsupportedFrame, n, MaxBatchSamples)
	}
	narrow := make([]int32, n)
	isWide := make([]bool, n)
	var flags []byte
	for i, v := range values {
		scaled := math.Trunc(v * narrowScale)
		if scaled >= int32Min && scaled <= int32Max {
			narrow[i] = int32(scaled)
		} else {
			isWide[i] = true
			flags = append(flags, byte(i+1))
		}
	}

	out := make([]byte, 0, 1+len(flags)+n*8)
	out = append(out, byte(len(flags)))
	out = append(out, flags...)
	for i, v := range values {
		if isWide[i] {
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
			out = append(out, b[:]...)
		} else {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(narrow[i]))
			out = append(out, b[:]...)
		}
	}
	if len(out) > MaxPayload {
		return nil, fmt.Errorf("%w: batch payload %d exceeds max %d", ErrUnsupportedFrame, len(out), MaxPayload)
	}
	return out, nil
}

// DecodeBatch reverses EncodeBatch, reading exactly n samples from data.
func DecodeBatch(data []byte, n int) ([]float64, error) {
	if n < 1 || n > MaxBatchSamples {
		return nil, fmt.Errorf("%w: batch size %d out of range 1..%d", ErrUnsupportedFrame, n, MaxBatchSamples)
	}
	if len(data) < 1 {
		return nil, ErrPayloadTruncated
	}
	flagCount := int(data[0])
	pos := 1
	if len(data) < pos+flagCount {
		return nil, ErrPayloadTruncated
	}
	wide := make(map[int]struct{}, flagCount)
	for i := 0; i < flagCount; i++ {
		wide[int(data[pos+i])] = struct{}{}
	}
	pos += flagCount

	values := make([]float64, n)
	for i := 1; i <= n; i++ {
		if _, ok := wide[i]; ok {
			if len(data) < pos+8 {
				return nil, ErrPayloadTruncated
			}
			bits := binary.BigEndian.Uint64(data[pos : pos+8])
			values[i-1] = math.Float64frombits(bits)
			pos += 8
		} else {
			if len(data) < pos+4 {
				return nil, ErrPayloadTruncated
			}
			iv := int32(binary.BigEndian.Uint32(data[pos : pos+4]))
			values[i-1] = float64(iv) / narrowScale
			pos += 4
		}
	}
	return values, nil
}
