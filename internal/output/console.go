package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/metrics"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal = "━"

	progressFilled = "█"
	progressEmpty  = "░"
)

// Snapshotter is a source of live campaign snapshots, such as
// metrics.Monitor.
type Snapshotter interface {
	Snapshot() *metrics.Snapshot
}

// Console manages console output during and after a campaign.
type Console struct {
	name           string
	updateInterval time.Duration
	writer         io.Writer
	isTTY          bool
	useColors      bool
	quiet          bool
	unit           Unit
	colors         *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Name           string
	UpdateInterval time.Duration
	Writer         io.Writer
	Quiet          bool
	NoColor        bool
	ForceColors    bool
	ForceTTY       bool
	Unit           Unit
}

// NewConsole creates a new console output handler.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.UpdateInterval == 0 {
		config.UpdateInterval = time.Second
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	scheme := NoColorScheme()
	if useColors {
		scheme = DefaultColorScheme()
		for _, c := range scheme.all() {
			c.EnableColor()
		}
	}

	return &Console{
		name:           config.Name,
		updateInterval: config.UpdateInterval,
		writer:         config.Writer,
		isTTY:          isTTY,
		useColors:      useColors,
		quiet:          config.Quiet,
		unit:           config.Unit,
		colors:         scheme,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the campaign header.
func (c *Console) PrintHeader(targets int) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.colors.Value.Sprint(strings.Repeat(boxHorizontal, 56))
	c.writeln(line)
	c.writeln(c.colors.Title.Sprintf("%s - Running [%d targets]", c.name, targets))
	c.writeln(line)
	c.writeln("")
}

// Watch renders snapshots from src every update interval until ctx is done,
// then renders a final snapshot. On a terminal the display is redrawn in
// place; otherwise one status line is printed per interval.
func (c *Console) Watch(ctx context.Context, src Snapshotter) {
	if c.quiet || src == nil {
		return
	}

	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.isTTY {
				c.Update(src.Snapshot())
			}
			return
		case <-ticker.C:
			snap := src.Snapshot()
			if c.isTTY {
				c.Update(snap)
			} else {
				c.PrintNonInteractiveUpdate(snap)
			}
		}
	}
}

// Update redraws the live display.
func (c *Console) Update(snap *metrics.Snapshot) {
	if c.quiet || !c.isTTY || snap == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()
	lines := c.renderLive(snap)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// Clear removes the live display.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Console) clearLocked() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// renderLive renders one progress line per target.
func (c *Console) renderLive(snap *metrics.Snapshot) []string {
	lines := make([]string, 0, len(snap.Targets)+2)
	lines = append(lines, fmt.Sprintf("Elapsed: %s", c.colors.Dim.Sprint(formatDuration(snap.Elapsed))))

	width := 8
	for _, t := range snap.Targets {
		if len(t.TargetID) > width {
			width = len(t.TargetID)
		}
	}

	for _, t := range snap.Targets {
		failColor := c.colors.Good
		if done := t.Completed(); done > 0 {
			failColor = c.colors.Rate(float64(t.Failed) / float64(done))
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s %s/%d | RPS %s | p95 %s | fail %s",
			c.colors.Target.Sprintf("%-*s", width, t.TargetID),
			c.colors.Highlight.Sprintf("%-8s", t.Phase),
			c.colors.Good.Sprint(renderProgressBar(t.Progress(), 30)),
			c.colors.Title.Sprintf("%3.0f%%", t.Progress()*100),
			formatNumber(t.Completed()), t.Expected,
			c.colors.Value.Sprintf("%.1f", t.RPS),
			c.colors.Value.Sprint(c.unit.Format(t.P95)),
			failColor.Sprint(formatNumber(t.Failed)),
		))
	}
	return lines
}

// PrintNonInteractiveUpdate prints a status line per target.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *Console) PrintNonInteractiveUpdate(snap *metrics.Snapshot) {
	if c.quiet || snap == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range snap.Targets {
		if t.Phase == bench.PhaseDone {
			continue
		}
		c.writeln(fmt.Sprintf("[%s] %s %s | Progress: %.0f%% | Reqs: %d/%d | In flight: %d | RPS: %.1f | Failed: %d | P95: %s",
			formatDuration(snap.Elapsed),
			t.TargetID,
			t.Phase,
			t.Progress()*100,
			t.Completed(),
			t.Expected,
			t.InFlight,
			t.RPS,
			t.Failed,
			c.unit.Format(t.P95)))
	}
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// write writes to the output without a newline.
func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}
