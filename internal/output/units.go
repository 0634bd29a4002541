package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/bench/stats"
)

// Unit is the display unit for durations.
type Unit string

const (
	UnitAuto        Unit = ""
	UnitNanosecond  Unit = "ns"
	UnitMicrosecond Unit = "us"
	UnitMillisecond Unit = "ms"
	UnitSecond      Unit = "s"
)

// ParseUnit accepts ns, us (or µs), ms, s, or an empty string for automatic
// scaling.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return UnitAuto, nil
	case "ns":
		return UnitNanosecond, nil
	case "us", "µs":
		return UnitMicrosecond, nil
	case "ms":
		return UnitMillisecond, nil
	case "s":
		return UnitSecond, nil
	}
	return "", fmt.Errorf("unknown display unit %q (want ns, us, ms or s)", s)
}

// Format renders d in the unit. UnitAuto picks the largest unit below d.
func (u Unit) Format(d time.Duration) string {
	switch u {
	case UnitNanosecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case UnitMicrosecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case UnitMillisecond:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case UnitSecond:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
	return formatLatency(d)
}

// FormatOptional renders an absent value as "-".
func (u Unit) FormatOptional(v stats.Optional[time.Duration]) string {
	d, ok := v.Get()
	if !ok {
		return "-"
	}
	return u.Format(d)
}

// formatLatency formats a latency duration in a human-readable way.
func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0"
	}
	if d < 0 {
		return "-" + formatLatency(-d)
	}
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		us := float64(d) / float64(time.Microsecond)
		if us < 100 {
			return fmt.Sprintf("%.1fµs", us)
		}
		return fmt.Sprintf("%dµs", int(us))
	}
	if d < time.Second {
		ms := float64(d) / float64(time.Millisecond)
		if ms < 100 {
			return fmt.Sprintf("%.2fms", ms)
		}
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// formatDuration formats a wall time in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

// formatBytes formats a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatPercent formats a ratio in [0, 1] as a percentage.
func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// formatRelative formats a relative delta with an explicit sign.
func formatRelative(v stats.Optional[float64]) string {
	r, ok := v.Get()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", r*100)
}
