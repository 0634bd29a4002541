package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/stats"
)

const histogramWidth = 40

// PrintReport prints the final campaign summary. In quiet mode only the
// overall verdict is printed.
func (c *Console) PrintReport(rep *report.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()

	if c.quiet {
		c.writeln(c.verdict(rep))
		return nil
	}

	line := c.colors.Value.Sprint(strings.Repeat(boxHorizontal, 56))
	c.writeln("")
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(rep.Campaign.Name), c.verdict(rep)))
	c.writeln(line)
	c.writeln("")
	c.writeln(fmt.Sprintf("Campaign:      %s", c.colors.Dim.Sprint(rep.Campaign.ID)))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(rep.Duration()))))
	c.writeln("")

	if err := c.printOverview(rep); err != nil {
		return err
	}
	for _, res := range rep.Results {
		c.printDetail(res)
	}
	if len(rep.Comparisons) > 0 {
		if err := c.printComparisons(rep.Comparisons); err != nil {
			return err
		}
	}
	if len(rep.Notes) > 0 {
		c.writeln(c.colors.Title.Sprint("Notes:"))
		for _, n := range rep.Notes {
			c.writeln(fmt.Sprintf("  %s %s", WarningIcon(!c.useColors), n))
		}
		c.writeln("")
	}
	return nil
}

// PrintComparisons prints a comparison table on its own, e.g. for
// `volley compare`.
func (c *Console) PrintComparisons(results []*compare.Result, notes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		for _, r := range results {
			if r.Regressed {
				c.writeln(c.colors.Bad.Sprint("REGRESSED"))
				return nil
			}
		}
		c.writeln(c.colors.Good.Sprint("OK"))
		return nil
	}

	if err := c.printComparisons(results); err != nil {
		return err
	}
	for _, n := range notes {
		c.writeln(fmt.Sprintf("  %s %s", WarningIcon(!c.useColors), n))
	}
	return nil
}

func (c *Console) verdict(rep *report.Report) string {
	switch {
	case rep.Failed():
		return c.colors.Bad.Sprint("FAILED ✗")
	case rep.Regressed():
		return c.colors.Bad.Sprint("REGRESSED ✗")
	}
	return c.colors.Good.Sprint("PASSED ✓")
}

// percentileSet returns the percentiles shown as columns.
func percentileSet(rep *report.Report) []float64 {
	if ps := rep.Campaign.Statistics.Percentiles; len(ps) > 0 {
		return ps
	}
	for _, res := range rep.Results {
		if res.Summary != nil && len(res.Summary.Percentiles) > 0 {
			ps := make([]float64, len(res.Summary.Percentiles))
			for i, pv := range res.Summary.Percentiles {
				ps[i] = pv.Percentile
			}
			return ps
		}
	}
	return nil
}

func (c *Console) printOverview(rep *report.Report) error {
	percentiles := percentileSet(rep)

	header := []string{"Target", "Requests", "Success", "Mean", "CI", "Min"}
	for _, p := range percentiles {
		header = append(header, fmt.Sprintf("p%g", p))
	}
	header = append(header, "Max", "RPS")

	table := tablewriter.NewTable(c.writer, tablewriter.WithHeader(header))
	for _, res := range rep.Results {
		s := res.Summary
		if s == nil {
			s = stats.Empty(res.Target.ID)
		}

		success := "-"
		if s.Counts.Total > 0 {
			ratio := float64(s.Counts.Success) / float64(s.Counts.Total)
			success = c.colors.Rate(1 - ratio).Sprint(formatPercent(ratio))
		}

		ci := "-"
		if iv, ok := s.ConfidenceInterval.Get(); ok {
			ci = fmt.Sprintf("±%s", c.unit.Format((iv.Upper-iv.Lower)/2))
		}

		row := []string{
			res.Target.ID,
			formatNumber(int64(s.Counts.Total)),
			success,
			c.unit.FormatOptional(s.Mean),
			ci,
			c.unit.FormatOptional(s.Min),
		}
		for _, p := range percentiles {
			row = append(row, c.unit.FormatOptional(s.Percentile(p)))
		}
		throughput := "-"
		if v, ok := s.Throughput.Get(); ok {
			throughput = fmt.Sprintf("%.1f", v)
		}
		row = append(row, c.unit.FormatOptional(s.Max), throughput)

		if err := table.Append(row); err != nil {
			return fmt.Errorf("render summary table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render summary table: %w", err)
	}
	c.writeln("")
	return nil
}

func (c *Console) printDetail(res report.Result) {
	s := res.Summary
	c.writeln(fmt.Sprintf("%s %s %s",
		c.colors.Target.Sprint(res.Target.ID),
		res.Target.Method,
		c.colors.URL.Sprint(res.Target.URL)))

	if res.Target.Error != "" {
		c.writeln(fmt.Sprintf("  %s %s", ErrorIcon(!c.useColors), c.colors.Bad.Sprint(res.Target.Error)))
		c.writeln("")
		return
	}
	if s == nil || s.IsEmpty() {
		c.writeln(c.colors.Dim.Sprint("  no measured samples"))
		c.writeln("")
		return
	}
	if s.Cancelled {
		c.writeln(fmt.Sprintf("  %s cancelled after %d requests", WarningIcon(!c.useColors), s.Counts.Total))
	}

	c.writeln(fmt.Sprintf("  Median:    %s   Std dev: %s   IQR: %s",
		c.unit.FormatOptional(s.Median), c.unit.FormatOptional(s.StdDev), c.unit.FormatOptional(s.IQR)))
	if iv, ok := s.ConfidenceInterval.Get(); ok {
		c.writeln(fmt.Sprintf("  Mean CI:   [%s, %s] at %.0f%% (%s)",
			c.unit.Format(iv.Lower), c.unit.Format(iv.Upper), iv.Level*100, iv.Method))
	}
	if bs, ok := s.Bootstrap.Get(); ok {
		c.writeln(fmt.Sprintf("  Bootstrap: [%s, %s] from %d resampled means, std error %s",
			c.unit.Format(bs.Lower), c.unit.Format(bs.Upper), bs.Resamples, c.unit.Format(bs.StdError)))
	}
	if f, ok := s.Fences.Get(); ok {
		c.writeln(fmt.Sprintf("  Outliers:  %d outside [%s, %s]",
			len(s.Outliers), c.unit.Format(f.Lower), c.unit.Format(f.Upper)))
	}
	if s.TotalBytes > 0 {
		c.writeln(fmt.Sprintf("  Received:  %s", formatBytes(s.TotalBytes)))
	}
	if s.Counts.Censored > 0 {
		c.writeln(fmt.Sprintf("  Censored:  %d timeouts included as lower bounds", s.Counts.Censored))
	}

	if s.Counts.Failure > 0 {
		var parts []string
		for _, reason := range bench.FailureReasons {
			if n := s.Counts.ByReason[reason]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", reason, n))
			}
		}
		for _, code := range sortedCodes(s.Counts.FailedStatus) {
			parts = append(parts, fmt.Sprintf("HTTP %d=%d", code, s.Counts.FailedStatus[code]))
		}
		c.writeln(fmt.Sprintf("  Failures:  %s", c.colors.Bad.Sprint(strings.Join(parts, ", "))))
	}

	if len(s.Workers) > 1 {
		c.writeln("  Workers:")
		for _, w := range s.Workers {
			c.writeln(fmt.Sprintf("    #%-3d %6d reqs  mean %s  sd %s  min %s  max %s",
				w.Worker, w.Count, c.unit.Format(w.Mean), c.unit.FormatOptional(w.StdDev),
				c.unit.Format(w.Min), c.unit.Format(w.Max)))
		}
	}

	c.printHistogram(s.Histogram)
	c.writeln("")
}

func (c *Console) printHistogram(bins []stats.Bin) {
	if len(bins) == 0 {
		return
	}
	peak := 0
	for _, b := range bins {
		if b.Count > peak {
			peak = b.Count
		}
	}

	labels := make([]string, len(bins))
	width := 0
	for i, b := range bins {
		labels[i] = fmt.Sprintf("%s - %s", c.unit.Format(b.Lower), c.unit.Format(b.Upper))
		if len(labels[i]) > width {
			width = len(labels[i])
		}
	}

	c.writeln("  Histogram:")
	for i, b := range bins {
		bar := 0
		if peak > 0 {
			bar = b.Count * histogramWidth / peak
		}
		if b.Count > 0 && bar == 0 {
			bar = 1
		}
		c.writeln(fmt.Sprintf("    %-*s %s %d", width, labels[i],
			c.colors.Value.Sprint(strings.Repeat(progressFilled, bar)), b.Count))
	}
}

func (c *Console) printComparisons(results []*compare.Result) error {
	c.writeln(c.colors.Title.Sprint("Comparisons:"))
	table := tablewriter.NewTable(c.writer, tablewriter.WithHeader([]string{
		"Baseline", "Candidate", "Metric", "Before", "After", "Delta", "Change", "p-value", "Verdict",
	}))

	for _, r := range results {
		key := fmt.Sprintf("p%g", r.KeyPercentile)
		for _, d := range r.Deltas {
			verdict := ""
			if d.Metric == key {
				verdict = c.colors.Good.Sprint("ok")
				if r.Regressed {
					verdict = c.colors.Bad.Sprint("REGRESSED")
				}
			}
			pvalue := ""
			if d.Metric == "mean" {
				if sig, ok := r.Significance.Get(); ok {
					pvalue = fmt.Sprintf("%.4f", sig.PValue)
					verdict = string(sig.Verdict)
				}
			}
			absolute := "-"
			if v, ok := d.Absolute.Get(); ok {
				absolute = signed(c.unit, v)
			}
			row := []string{
				r.Baseline, r.Candidate, d.Metric,
				c.unit.FormatOptional(d.Baseline),
				c.unit.FormatOptional(d.Candidate),
				absolute,
				formatRelative(d.Relative),
				pvalue,
				verdict,
			}
			if err := table.Append(row); err != nil {
				return fmt.Errorf("render comparison table: %w", err)
			}
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render comparison table: %w", err)
	}
	c.writeln("")
	return nil
}

func signed(u Unit, d time.Duration) string {
	if d < 0 {
		return "-" + u.Format(-d)
	}
	return "+" + u.Format(d)
}

func sortedCodes(m map[int]int) []int {
	codes := make([]int, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// WriteJSON writes the report as JSON.
func WriteJSON(w io.Writer, rep *report.Report) error {
	return rep.Encode(w)
}
