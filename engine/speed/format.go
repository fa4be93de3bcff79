package speed

import (
	"fmt"

	"github.com/arjwright/dlctl/engine/dlerr"
)

// FormatRate renders a bytes-per-second value using powers-of-1024 units
// (B/s, KiB/s, MiB/s, GiB/s), rounded to 2 decimals for KiB/s and above;
// values under 1 KiB/s are shown as whole B/s (spec.md §4.3). Zero is
// emitted as "0 B/s"; a negative input is rejected with a bounds error
// rather than silently clamped.
func FormatRate(bytesPerSecond float64) (string, error) {
	if bytesPerSecond < 0 {
		return "", dlerr.New(dlerr.CodeArgumentOutOfRange, "rate must be >= 0")
	}
	if bytesPerSecond == 0 {
		return "0 B/s", nil
	}

	const unit = 1024.0
	units := []string{"B/s", "KiB/s", "MiB/s", "GiB/s"}

	value := bytesPerSecond
	idx := 0
	for value >= unit && idx < len(units)-1 {
		value /= unit
		idx++
	}
	if idx == 0 {
		return fmt.Sprintf("%.0f %s", value, units[idx]), nil
	}
	return fmt.Sprintf("%.2f %s", value, units[idx]), nil
}
