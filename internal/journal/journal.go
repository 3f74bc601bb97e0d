package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var (
	deviceIDCol  = indexOf("device_id")
	seqCol       = indexOf("seq")
	duplicateCol = indexOf("duplicate_flag")
)

func indexOf(name string) int {
	for i, h := range csvHeader {
		if h == name {
			return i
		}
	}
	panic("journal: unknown column " + name)
}

// Journal is the append-only per-reading CSV log (spec.md §4.3, §6
// "Persistence"). Duplicate post-marking rewrites the file atomically via
// tempfile+rename, mirroring save_to_csv(..., is_update=True)'s
// load-all-rows-then-rewrite behavior from the Python reference.
type Journal struct {
	mu   sync.Mutex
	path string
}

// Open creates (or truncates, matching init_csv_file's fresh-run behavior)
// the journal file at path and writes the column header.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: mkdir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("journal: create: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("journal: write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("journal: flush header: %w", err)
	}
	return &Journal{path: path}, nil
}

// Append writes rows to the end of the journal file.
func (j *Journal) Append(rows ...Row) error {
	if len(rows) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open for append: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, r := range rows {
		if err := w.Write(r.csvRecord()); err != nil {
			return fmt.Errorf("journal: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// MarkDuplicate sets duplicate_flag=1 on every previously journaled row
// for (deviceID, seq), rewriting the file atomically via a temp file and
// rename (spec.md §8 "Duplicate post-marking").
func (j *Journal) MarkDuplicate(deviceID uint8, seq uint16) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return fmt.Errorf("journal: open for rewrite: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	f.Close()
	if err != nil {
		return fmt.Errorf("journal: read for rewrite: %w", err)
	}

	deviceStr := strconv.Itoa(int(deviceID))
	seqStr := strconv.Itoa(int(seq))
	for i, rec := range records {
		if i == 0 {
			continue // header
		}
		if len(rec) > duplicateCol && rec[deviceIDCol] == deviceStr && rec[seqCol] == seqStr {
			rec[duplicateCol] = "1"
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".journal-*.tmp")
	if err != nil {
		return fmt.Errorf("journal: create temp: %w", err)
	}
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("journal: write temp: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("journal: rename temp over original: %w", err)
	}
	return nil
}
