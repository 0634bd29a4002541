package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/volley/internal/bench/campaign"
	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/config"
	"github.com/wesleyorama2/volley/internal/bench/metrics"
	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/stats"
	"github.com/wesleyorama2/volley/internal/history"
	"github.com/wesleyorama2/volley/internal/output"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark campaign",
		Long: `Run a benchmark campaign from a configuration file or a single URL.

Config file mode:
  volley run --config campaign.yaml

Quick CLI mode (single target):
  volley run --url https://api.example.com/health \
    --warmup 10 --iterations 500 --concurrency 8

Compare against the previous run of the same campaign:
  volley run --config campaign.yaml --history .volley --baseline-history`,
		Args: cobra.NoArgs,
		RunE: runCampaign,
	}

	// Input
	cmd.Flags().StringP("config", "c", "", "Campaign file (YAML or JSON)")
	cmd.Flags().String("url", "", "URL to benchmark (alternative to --config)")
	cmd.Flags().StringP("method", "X", "GET", "HTTP method for --url")
	cmd.Flags().StringArrayP("header", "H", nil, "Request header for --url, as 'Key: Value' (repeatable)")
	cmd.Flags().String("body", "", "Request body for --url")
	cmd.Flags().String("name", "", "Campaign name")

	// Plan
	cmd.Flags().Int("warmup", 0, "Warmup requests per target (not measured)")
	cmd.Flags().IntP("iterations", "n", config.DefaultIterations, "Measured requests per target")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency, "Maximum requests in flight per target")
	cmd.Flags().Float64("rate", 0, "Maximum requests per second per target (0 = unlimited)")
	cmd.Flags().Duration("max-duration", 0, "Stop each target's measured phase after this long")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Per-request timeout")
	cmd.Flags().String("protocol", "", "HTTP protocol: h1, h2 or h3")
	cmd.Flags().BoolP("insecure", "k", false, "Skip TLS certificate verification")
	cmd.Flags().Bool("sequential", false, "Run targets one after another")

	// Statistics
	cmd.Flags().Float64Slice("percentiles", nil, "Percentiles to report (default 50,90,95,99)")
	cmd.Flags().Float64("confidence", 0, "Confidence level for the mean (default 0.95)")
	cmd.Flags().String("ci-method", "", "Confidence interval method: normal or student-t")
	cmd.Flags().Int("bins", 0, "Histogram bins (default: square-root rule)")
	cmd.Flags().String("timeout-policy", "", "Timed-out requests: exclude or censor")
	cmd.Flags().Bool("series", false, "Include the per-request time series in the report")
	cmd.Flags().Int("bootstrap", 0, "Resampled means for the bootstrap interval (0 disables)")
	cmd.Flags().Int64("bootstrap-seed", 0, "Seed of the bootstrap resampling")

	// Comparison
	cmd.Flags().Float64("threshold", compare.DefaultThreshold, "Relative increase of the key percentile that counts as a regression")
	cmd.Flags().Float64("key-percentile", compare.DefaultKeyPercentile, "Percentile used for the regression verdict")
	cmd.Flags().String("baseline", "", "Compare every target against this report file")
	cmd.Flags().Bool("baseline-history", false, "Compare against the latest stored run of this campaign (requires --history)")
	cmd.Flags().String("history", "", "Directory of the report history store; the report is saved there")

	// Output
	cmd.Flags().Bool("json", false, "Output the report as JSON")
	cmd.Flags().Bool("html", false, "Generate an HTML report")
	cmd.Flags().StringP("output", "o", "", "Report file (.json, .html, or a base name for both)")
	cmd.Flags().BoolP("quiet", "q", false, "Disable live progress output, show only the verdict")
	cmd.Flags().String("unit", "", "Duration unit for console output: ns, us, ms or s")
	return cmd
}

// runCampaign runs a campaign and renders the report.
func runCampaign(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	url, _ := cmd.Flags().GetString("url")
	noColor, _ := cmd.Flags().GetBool("no-color")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	htmlOutput, _ := cmd.Flags().GetBool("html")
	quiet, _ := cmd.Flags().GetBool("quiet")
	unitFlag, _ := cmd.Flags().GetString("unit")
	baselinePath, _ := cmd.Flags().GetString("baseline")
	baselineHistory, _ := cmd.Flags().GetBool("baseline-history")
	historyDir, _ := cmd.Flags().GetString("history")

	var cfg *config.Config
	var err error
	switch {
	case configFile != "" && url != "":
		return errors.New("--config and --url are mutually exclusive")
	case configFile != "":
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	case url != "":
		cfg, err = buildConfigFromCLI(cmd, url)
		if err != nil {
			return fmt.Errorf("error building config: %w", err)
		}
	default:
		return errors.New("either --config or --url is required")
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}
	config.ApplyDefaults(cfg)

	if baselineHistory && historyDir == "" {
		return errors.New("--baseline-history requires --history")
	}

	if unitFlag == "" {
		unitFlag = cfg.Options.DisplayUnit
	}
	unit, err := output.ParseUnit(unitFlag)
	if err != nil {
		return err
	}

	var store *history.Store
	if historyDir != "" {
		store, err = history.Open(historyDir, history.WithLogger(slog.Default()))
		if err != nil {
			return err
		}
		defer store.Close()
	}

	baseline, baselineNote, err := loadBaseline(store, baselinePath, baselineHistory, cfg.Name)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	jsonToStdout := jsonOutput && outputPath == ""
	console := output.NewConsole(output.ConsoleConfig{
		Name:   cfg.Name,
		Writer: stdout,
		// The JSON document owns stdout.
		Quiet:   quiet || jsonToStdout,
		NoColor: noColor,
		Unit:    unit,
	})

	monitor := metrics.NewMonitor()
	c, err := campaign.New(cfg, campaign.WithObserver(monitor), campaign.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.PrintHeader(len(cfg.Targets))

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		console.Watch(watchCtx, monitor)
	}()

	rep, runErr := c.Run(ctx)
	stopWatch()
	wg.Wait()
	if runErr != nil {
		return fmt.Errorf("error running campaign: %w", runErr)
	}

	if baselineNote != "" {
		rep.AddNote(baselineNote)
	}
	if baseline != nil {
		results, notes := campaign.CompareReports(baseline, rep, rep.Campaign.Comparison)
		rep.Comparisons = append(rep.Comparisons, results...)
		for _, n := range notes {
			rep.AddNote(n)
		}
	}

	if store != nil {
		key, err := store.Put(rep)
		if err != nil {
			slog.Error("failed to save report to history", slog.Any("error", err))
		} else {
			slog.Debug("report saved", slog.String("key", key))
		}
	}

	if jsonToStdout {
		if err := output.WriteJSON(stdout, rep); err != nil {
			return err
		}
	} else {
		if err := console.PrintReport(rep); err != nil {
			return err
		}
		if err := writeReportFiles(stdout, rep, outputPath, jsonOutput, htmlOutput); err != nil {
			return err
		}
	}

	if rep.Failed() || rep.Regressed() {
		return ErrCheckFailed
	}
	return nil
}

// buildConfigFromCLI builds a single-target Config from CLI flags.
func buildConfigFromCLI(cmd *cobra.Command, url string) (*config.Config, error) {
	method, _ := cmd.Flags().GetString("method")
	headerFlags, _ := cmd.Flags().GetStringArray("header")
	body, _ := cmd.Flags().GetString("body")

	headers := make(map[string]string, len(headerFlags))
	for _, h := range headerFlags {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Key: Value')", h)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return &config.Config{
		Name:        "CLI Benchmark",
		Description: fmt.Sprintf("Benchmark generated from CLI flags for %s", url),
		Targets: []*config.TargetConfig{
			{
				ID:      "cli-request",
				Method:  method,
				URL:     url,
				Headers: headers,
				Body:    body,
			},
		},
	}, nil
}

// applyFlagOverrides copies explicitly set flags onto cfg. Flags override the
// file's defaults but not per-target overrides.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("name") {
		cfg.Name, _ = flags.GetString("name")
	}
	if flags.Changed("warmup") {
		v, _ := flags.GetInt("warmup")
		cfg.Defaults.Warmup = &v
	}
	if flags.Changed("iterations") {
		v, _ := flags.GetInt("iterations")
		cfg.Defaults.Iterations = &v
	}
	if flags.Changed("concurrency") {
		v, _ := flags.GetInt("concurrency")
		cfg.Defaults.Concurrency = &v
	}
	if flags.Changed("rate") {
		v, _ := flags.GetFloat64("rate")
		cfg.Defaults.Rate = &v
	}
	if flags.Changed("max-duration") {
		v, _ := flags.GetDuration("max-duration")
		d := config.Duration(v)
		cfg.Defaults.MaxDuration = &d
	}
	if flags.Changed("timeout") {
		v, _ := flags.GetDuration("timeout")
		cfg.Settings.Timeout = config.Duration(v)
	}
	if flags.Changed("protocol") {
		cfg.Settings.Protocol, _ = flags.GetString("protocol")
	}
	if flags.Changed("insecure") {
		cfg.Settings.InsecureSkipVerify, _ = flags.GetBool("insecure")
	}
	if flags.Changed("sequential") {
		cfg.Options.Sequential, _ = flags.GetBool("sequential")
	}

	if flags.Changed("percentiles") {
		cfg.Statistics.Percentiles, _ = flags.GetFloat64Slice("percentiles")
	}
	if flags.Changed("confidence") {
		cfg.Statistics.ConfidenceLevel, _ = flags.GetFloat64("confidence")
	}
	if flags.Changed("ci-method") {
		v, _ := flags.GetString("ci-method")
		cfg.Statistics.CIMethod = stats.CIMethod(strings.ToLower(v))
	}
	if flags.Changed("bins") {
		cfg.Statistics.Histogram.Bins, _ = flags.GetInt("bins")
	}
	if flags.Changed("timeout-policy") {
		v, _ := flags.GetString("timeout-policy")
		policy, err := stats.ParseTimeoutPolicy(v)
		if err != nil {
			return err
		}
		cfg.Statistics.TimeoutPolicy = policy
	}
	if flags.Changed("series") {
		cfg.Statistics.IncludeSeries, _ = flags.GetBool("series")
	}
	if flags.Changed("bootstrap") {
		cfg.Statistics.Bootstrap.Resamples, _ = flags.GetInt("bootstrap")
	}
	if flags.Changed("bootstrap-seed") {
		cfg.Statistics.Bootstrap.Seed, _ = flags.GetInt64("bootstrap-seed")
	}

	if flags.Changed("threshold") {
		v, _ := flags.GetFloat64("threshold")
		cfg.Comparison.Threshold = &v
	}
	if flags.Changed("key-percentile") {
		v, _ := flags.GetFloat64("key-percentile")
		cfg.Comparison.KeyPercentile = &v
	}
	return nil
}

// loadBaseline returns the report to compare against, if any. A missing
// history entry is not an error; it is described by the returned note.
func loadBaseline(store *history.Store, path string, fromHistory bool, name string) (*report.Report, string, error) {
	switch {
	case path != "":
		rep, err := report.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("error loading baseline: %w", err)
		}
		return rep, "", nil
	case fromHistory && store != nil:
		rep, err := store.Latest(name)
		if errors.Is(err, history.ErrNotFound) {
			return nil, fmt.Sprintf("no previous run of %q in history; nothing to compare against", name), nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("error loading baseline from history: %w", err)
		}
		return rep, "", nil
	}
	return nil, "", nil
}

// writeReportFiles writes report files chosen by flags and the output
// extension. An output path without a known extension produces both formats.
func writeReportFiles(w io.Writer, rep *report.Report, outputPath string, jsonOutput, htmlOutput bool) error {
	lower := strings.ToLower(outputPath)
	outputIsHTML := htmlOutput || strings.HasSuffix(lower, ".html")
	outputIsJSON := jsonOutput || strings.HasSuffix(lower, ".json")

	switch {
	case outputPath == "" && outputIsHTML:
		return outputHTMLReport(w, rep, generateDefaultHTMLPath(rep.Campaign.Name, time.Now()))
	case outputPath == "":
		return nil
	case outputIsJSON && !outputIsHTML:
		return outputJSONReport(w, rep, outputPath)
	case outputIsHTML && !outputIsJSON:
		return outputHTMLReport(w, rep, outputPath)
	}

	base := outputPath
	if ext := filepath.Ext(lower); ext == ".json" || ext == ".html" {
		base = outputPath[:len(outputPath)-len(ext)]
	}
	if err := outputHTMLReport(w, rep, base+".html"); err != nil {
		return err
	}
	return outputJSONReport(w, rep, base+".json")
}

// generateDefaultHTMLPath creates a default HTML report path based on the
// campaign name.
func generateDefaultHTMLPath(name string, now time.Time) string {
	safeName := strings.ReplaceAll(name, " ", "-")
	safeName = strings.ReplaceAll(safeName, "/", "-")
	safeName = strings.ToLower(safeName)

	return fmt.Sprintf("volley-report-%s-%s.html", safeName, now.Format("20060102-150405"))
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return nil
}

// outputHTMLReport generates and saves an HTML report.
func outputHTMLReport(w io.Writer, rep *report.Report, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := output.GenerateHTML(rep, path); err != nil {
		return fmt.Errorf("failed to generate HTML report: %w", err)
	}
	fmt.Fprintf(w, "Report: %s\n", path)
	return nil
}

// outputJSONReport saves the report as JSON.
func outputJSONReport(w io.Writer, rep *report.Report, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := rep.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Report: %s\n", path)
	return nil
}
