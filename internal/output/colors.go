// Package output renders campaign progress and reports for humans (console
// and HTML) and machines (JSON).
package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title     *color.Color
	Target    *color.Color
	URL       *color.Color
	Value     *color.Color
	Good      *color.Color
	Warn      *color.Color
	Bad       *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Target:    color.New(color.FgBlue, color.Bold),
		URL:       color.New(color.FgCyan),
		Value:     color.New(color.FgCyan),
		Good:      color.New(color.FgGreen, color.Bold),
		Warn:      color.New(color.FgYellow, color.Bold),
		Bad:       color.New(color.FgRed, color.Bold),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// NewColorScheme picks the default or the colorless scheme.
func NewColorScheme(noColor bool) *ColorScheme {
	if noColor {
		return NoColorScheme()
	}
	return DefaultColorScheme()
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Target, s.URL, s.Value, s.Good, s.Warn, s.Bad, s.Dim, s.Highlight}
}

// Rate colors a failure ratio: green up to 1%, yellow up to 5%, red above.
func (s *ColorScheme) Rate(failureRatio float64) *color.Color {
	switch {
	case failureRatio > 0.05:
		return s.Bad
	case failureRatio > 0.01:
		return s.Warn
	}
	return s.Good
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}

// WarningIcon returns a warning symbol with appropriate color
func WarningIcon(noColor bool) string {
	if noColor {
		return "⚠"
	}
	return color.New(color.FgYellow).Sprint("⚠")
}
