package sensor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ConfigEntry is one parsed line of the device configuration file (spec.md
// §6 Configuration file contract): device_id, unit_name, data_file_path.
type ConfigEntry struct {
	DeviceID     int
	UnitName     string
	DataFilePath string
}

// LoadConfig parses the comma-separated device configuration file,
// skipping blank lines and lines beginning with '#'. This is the external
// adapter named in spec.md §1; it returns configuration errors rather than
// exiting so the caller (cmd/) decides how to report them.
func LoadConfig(path string) ([]ConfigEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sensor: open config: %w", err)
	}
	defer f.Close()

	var entries []ConfigEntry
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		deviceID, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("sensor: config line %d: invalid device_id: %w", lineNo, err)
		}
		entries = append(entries, ConfigEntry{
			DeviceID:     deviceID,
			UnitName:     strings.TrimSpace(parts[1]),
			DataFilePath: strings.TrimSpace(parts[2]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sensor: scan config: %w", err)
	}
	return entries, nil
}

// BuildDescriptor resolves a single device's config entry into a ready-to-use
// Descriptor backed by a FileSource.
func BuildDescriptor(entries []ConfigEntry, deviceID int) (Descriptor, error) {
	for _, e := range entries {
		if e.DeviceID == deviceID {
			src, err := NewFileSource(e.DataFilePath)
			if err != nil {
				return Descriptor{}, fmt.Errorf("sensor: device %d: %w", deviceID, err)
			}
			return Descriptor{
				DeviceID: uint8(deviceID),
				UnitName: e.UnitName,
				UnitCode: UnitCode(e.UnitName),
				Source:   src,
			}, nil
		}
	}
	return Descriptor{}, ErrUnknownDevice{DeviceID: deviceID}
}
