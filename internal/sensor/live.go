package sensor

import (
	"bufio"
	"strconv"
	"strings"
	"sync"
	"time"

	serialport "github.com/RogerSalama/TinyTelemetry/internal/serial"
)

// Port is an alias for the teacher's internal/serial.Port, reused here so a
// fake port can be injected in tests without depending on tarm/serial directly.
type Port = serialport.Port

// OpenSerial opens a real serial-attached sensor via the teacher's
// internal/serial.Open.
func OpenSerial(name string, baud int, readTimeout time.Duration) (Port, error) {
	return serialport.Open(name, baud, readTimeout)
}

// LiveSerialSource is an alternative to FileSource: it reads comma-separated
// decimal samples line-by-line off a real sensor connected over a serial
// link and feeds an unbounded ring buffer that Next drains from, blocking
// until enough samples have accumulated. It parses lines the same way
// FileSource parses file lines (skip blank/'#' lines, skip malformed
// tokens).
type LiveSerialSource struct {
	port Port

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []float64
	closed bool
}

// NewLiveSerialSource opens the serial port and starts the background
// reader goroutine.
func NewLiveSerialSource(device string, baud int, readTimeout time.Duration) (*LiveSerialSource, error) {
	p, err := OpenSerial(device, baud, readTimeout)
	if err != nil {
		return nil, err
	}
	return NewLiveSerialSourceFromPort(p), nil
}

// NewLiveSerialSourceFromPort wraps an already-open Port, letting tests
// inject a fake.
func NewLiveSerialSourceFromPort(p Port) *LiveSerialSource {
	s := &LiveSerialSource{port: p}
	s.cond = sync.NewCond(&s.mu)
	go s.readLoop()
	return s
}

func (s *LiveSerialSource) readLoop() {
	sc := bufio.NewScanner(s.port)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var parsed []float64
		for _, tok := range strings.Split(line, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				continue
			}
			parsed = append(parsed, v)
		}
		if len(parsed) == 0 {
			continue
		}
		s.mu.Lock()
		s.buf = append(s.buf, parsed...)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Next blocks until n samples have accumulated (or the port closes) and
// returns them, consuming the front of the buffer.
func (s *LiveSerialSource) Next(n int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) < n && !s.closed {
		s.cond.Wait()
	}
	if len(s.buf) < n {
		// Port closed with a partial read: wrap around what remains rather
		// than block forever, mirroring FileSource's wraparound behavior.
		if len(s.buf) == 0 {
			return nil, ErrEmptyStream
		}
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = s.buf[i%len(s.buf)]
		}
		return out, nil
	}
	out := append([]float64(nil), s.buf[:n]...)
	s.buf = s.buf[n:]
	return out, nil
}

// Close releases the underlying serial port.
func (s *LiveSerialSource) Close() error { return s.port.Close() }
