// Package sensor holds the sender-side device descriptor, the closed unit
// code mapping, and the numeric data sources (file replay and live serial)
// that feed the pacer. Grounded in original_source/protocol.py (unit table)
// and original_source/udpclnt.py (config + file loading).
package sensor

import "strings"

// unitNames is the closed 16-entry unit table from spec.md §6; index is the
// 4-bit unit code.
var unitNames = [16]string{
	"celsius", "fahrenheit", "kelvin", "percent",
	"volts", "amps", "watts", "meters",
	"liters", "grams", "pascal", "hertz",
	"lux", "db", "ppm", "unknown",
}

const unknownUnitCode = 15

// UnitCode converts a unit name to its 4-bit code, defaulting to "unknown"
// (15) for anything not in the table. Matching is case-insensitive.
func UnitCode(name string) uint8 {
	name = strings.ToLower(name)
	for i, n := range unitNames {
		if n == name {
			return uint8(i)
		}
	}
	return unknownUnitCode
}

// UnitName converts a 4-bit unit code back to its name, defaulting to
// "unknown" for any code outside 0..15 or not in the table (codes are
// always masked to 4 bits by callers, but out-of-range inputs here are
// handled defensively since the field also doubles as INIT's batch_count).
func UnitName(code uint8) string {
	if int(code) >= len(unitNames) {
		return "unknown"
	}
	return unitNames[code]
}
