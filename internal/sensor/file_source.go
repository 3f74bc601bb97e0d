package sensor

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// FileSource replays a flat, pre-loaded numeric stream with wraparound,
// mirroring original_source/udpclnt.py's load_all_data + chunking loop.
type FileSource struct {
	data  []float64
	index int
}

// NewFileSource loads every comma-separated decimal number across all
// (non-blank, non-comment) lines of path into one flat stream.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, tok := range strings.Split(line, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				continue // skip malformed tokens, matching the Python loader's try/except pass
			}
			data = append(data, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyStream
	}
	return &FileSource{data: data}, nil
}

// Next returns the next n samples, wrapping around the stream if needed.
func (s *FileSource) Next(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = s.data[(s.index+i)%len(s.data)]
	}
	s.index = (s.index + n) % len(s.data)
	return out, nil
}

// Reset rewinds the stream to its start, used on sender-side re-INIT
// recovery (spec.md §4.2 NACK handling step 2).
func (s *FileSource) Reset() { s.index = 0 }
