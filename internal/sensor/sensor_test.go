package sensor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUnitCodeRoundTrip(t *testing.T) {
	for code, name := range unitNames {
		if got := UnitCode(name); got != uint8(code) {
			t.Fatalf("UnitCode(%q) = %d, want %d", name, got, code)
		}
		if got := UnitName(uint8(code)); got != name {
			t.Fatalf("UnitName(%d) = %q, want %q", code, got, name)
		}
	}
}

func TestUnitCodeUnknownDefaultsTo15(t *testing.T) {
	if got := UnitCode("furlongs"); got != 15 {
		t.Fatalf("UnitCode(unknown) = %d, want 15", got)
	}
	if got := UnitCode("KELVIN"); got != 2 {
		t.Fatalf("UnitCode is case-insensitive: got %d, want 2", got)
	}
}

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFileSourceWraparound(t *testing.T) {
	path := writeTemp(t, "# comment\n1,2,3\n\n4,5\n")
	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	chunk, err := src.Next(7)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []float64{1, 2, 3, 4, 5, 1, 2}
	for i := range want {
		if chunk[i] != want[i] {
			t.Fatalf("chunk[%d] = %v, want %v", i, chunk[i], want[i])
		}
	}
}

func TestFileSourceEmptyIsConfigError(t *testing.T) {
	path := writeTemp(t, "# just a comment\n\n")
	if _, err := NewFileSource(path); err != ErrEmptyStream {
		t.Fatalf("got %v, want ErrEmptyStream", err)
	}
}

func TestLoadConfigAndBuildDescriptor(t *testing.T) {
	dataPath := writeTemp(t, "10,20,30\n")
	cfgPath := writeTemp(t, "# device_id, unit, data file\n3, kelvin, "+dataPath+"\n")
	entries, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(entries) != 1 || entries[0].DeviceID != 3 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	desc, err := BuildDescriptor(entries, 3)
	if err != nil {
		t.Fatalf("BuildDescriptor: %v", err)
	}
	if desc.UnitCode != UnitCode("kelvin") {
		t.Fatalf("unit code mismatch: got %d", desc.UnitCode)
	}
	if _, err := BuildDescriptor(entries, 99); err == nil {
		t.Fatal("expected ErrUnknownDevice for device 99")
	}
}
