package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/stats"
)

// htmlData contains all data needed to render the HTML report.
type htmlData struct {
	*report.Report
	Percentiles []float64
	ChartsJSON  template.JS
}

// chartData is the per-target data drawn by the page scripts.
type chartData struct {
	Target    string       `json:"target"`
	Histogram []chartBin   `json:"histogram"`
	QQ        []chartQQ    `json:"qq"`
	Series    []chartPoint `json:"series"`
}

type chartBin struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type chartQQ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type chartPoint struct {
	Seq     uint64  `json:"seq"`
	Elapsed float64 `json:"elapsed"`
	Success bool    `json:"success"`
}

// GenerateHTML renders the report to an HTML file.
func GenerateHTML(rep *report.Report, outputPath string) error {
	html, err := GenerateHTMLString(rep)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders the report as a self-contained HTML page.
func GenerateHTMLString(rep *report.Report) (string, error) {
	if rep == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	charts, err := chartsJSON(rep)
	if err != nil {
		return "", fmt.Errorf("failed to convert chart data: %w", err)
	}

	data := htmlData{
		Report:      rep,
		Percentiles: percentileSet(rep),
		ChartsJSON:  template.JS(charts),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func chartsJSON(rep *report.Report) (string, error) {
	charts := make([]chartData, 0, len(rep.Results))
	for _, res := range rep.Results {
		s := res.Summary
		if s == nil || s.IsEmpty() {
			continue
		}
		cd := chartData{Target: res.Target.ID}
		for _, b := range s.Histogram {
			cd.Histogram = append(cd.Histogram, chartBin{
				Label: formatLatency(b.Lower) + "-" + formatLatency(b.Upper),
				Count: b.Count,
			})
		}
		for _, p := range s.QQ {
			cd.QQ = append(cd.QQ, chartQQ{X: millis(p.Theoretical), Y: millis(p.Observed)})
		}
		for _, p := range s.Series {
			cd.Series = append(cd.Series, chartPoint{Seq: p.Seq, Elapsed: millis(p.Elapsed), Success: p.Success})
		}
		charts = append(charts, cd)
	}

	b, err := json.Marshal(charts)
	if err != nil {
		return "[]", err
	}
	return string(b), nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// templateFuncs returns the template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatLatency":  formatLatency,
		"formatBytes":    formatBytes,
		"formatNumber":   func(n int) string { return formatNumber(int64(n)) },
		"opt":            UnitAuto.FormatOptional,
		"percentile": func(s *stats.Summary, p float64) string {
			return UnitAuto.FormatOptional(s.Percentile(p))
		},
		"successRate": func(s *stats.Summary) string {
			if s == nil || s.Counts.Total == 0 {
				return "-"
			}
			return formatPercent(float64(s.Counts.Success) / float64(s.Counts.Total))
		},
		"throughput": func(s *stats.Summary) string {
			if v, ok := s.Throughput.Get(); ok {
				return fmt.Sprintf("%.1f/s", v)
			}
			return "-"
		},
		"relative": formatRelative,
		"pct":      func(p float64) string { return fmt.Sprintf("p%g", p) },
		"timestamp": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
	}
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Campaign.Name}} - Benchmark Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #f8fafc; --card: #ffffff; --text: #1e293b; --muted: #64748b;
            --border: #e2e8f0; --accent: #3b82f6; --ok: #22c55e; --bad: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
               background: var(--bg); color: var(--text); line-height: 1.6; }
        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }
        header { margin-bottom: 2rem; }
        header h1 { font-size: 1.75rem; }
        .meta { color: var(--muted); font-size: 0.9rem; }
        .badge { display: inline-block; padding: 0.15rem 0.6rem; border-radius: 999px; color: #fff; font-weight: 600; }
        .badge.ok { background: var(--ok); }
        .badge.bad { background: var(--bad); }
        .card { background: var(--card); border: 1px solid var(--border); border-radius: 8px;
                padding: 1.5rem; margin-bottom: 1.5rem; }
        .card h2 { font-size: 1.15rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { text-align: right; padding: 0.4rem 0.6rem; border-bottom: 1px solid var(--border); }
        th:first-child, td:first-child { text-align: left; }
        th { color: var(--muted); font-weight: 600; }
        .error { color: var(--bad); }
        .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(380px, 1fr)); gap: 1rem; }
        canvas { max-height: 280px; }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>{{.Campaign.Name}}
            {{if .Failed}}<span class="badge bad">FAILED</span>
            {{else if .Regressed}}<span class="badge bad">REGRESSED</span>
            {{else}}<span class="badge ok">PASSED</span>{{end}}
        </h1>
        {{if .Campaign.Description}}<p>{{.Campaign.Description}}</p>{{end}}
        <p class="meta">Campaign {{.Campaign.ID}} &middot; started {{timestamp .Campaign.StartedAt}}
            &middot; duration {{formatDuration .Duration}}
            &middot; CI {{.Campaign.Statistics.ConfidenceLevel}} ({{.Campaign.Statistics.CIMethod}})
            &middot; timeouts {{.Campaign.Statistics.TimeoutPolicy}}</p>
    </header>

    <section class="card">
        <h2>Summary</h2>
        <table>
            <thead>
            <tr>
                <th>Target</th><th>Requests</th><th>Success</th><th>Mean</th><th>Std dev</th><th>Min</th>
                {{range .Percentiles}}<th>{{pct .}}</th>{{end}}
                <th>Max</th><th>Throughput</th><th>Outliers</th>
            </tr>
            </thead>
            <tbody>
            {{range .Results}}
            <tr>
                <td>{{.Target.ID}}{{if .Target.Error}} <span class="error">{{.Target.Error}}</span>{{end}}</td>
                <td>{{formatNumber .Summary.Counts.Total}}</td>
                <td>{{successRate .Summary}}</td>
                <td>{{opt .Summary.Mean}}</td>
                <td>{{opt .Summary.StdDev}}</td>
                <td>{{opt .Summary.Min}}</td>
                {{$s := .Summary}}{{range $.Percentiles}}<td>{{percentile $s .}}</td>{{end}}
                <td>{{opt .Summary.Max}}</td>
                <td>{{throughput .Summary}}</td>
                <td>{{len .Summary.Outliers}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
    </section>

    {{if .Comparisons}}
    <section class="card">
        <h2>Comparisons</h2>
        <table>
            <thead>
            <tr><th>Baseline</th><th>Candidate</th><th>Metric</th><th>Before</th><th>After</th><th>Change</th><th>Regressed</th></tr>
            </thead>
            <tbody>
            {{range $c := .Comparisons}}{{range .Deltas}}
            <tr>
                <td>{{$c.Baseline}}</td><td>{{$c.Candidate}}</td><td>{{.Metric}}</td>
                <td>{{opt .Baseline}}</td><td>{{opt .Candidate}}</td><td>{{relative .Relative}}</td>
                <td>{{if $c.Regressed}}<span class="error">yes</span>{{else}}no{{end}}</td>
            </tr>
            {{end}}{{end}}
            </tbody>
        </table>
    </section>
    {{end}}

    {{if .Notes}}
    <section class="card">
        <h2>Notes</h2>
        <ul>{{range .Notes}}<li>{{.}}</li>{{end}}</ul>
    </section>
    {{end}}

    <section class="card">
        <h2>Distributions</h2>
        <div class="charts" id="charts"></div>
    </section>
</div>
<script>
    const charts = {{.ChartsJSON}};
    const root = document.getElementById('charts');
    function canvas() {
        const c = document.createElement('canvas');
        root.appendChild(c);
        return c;
    }
    for (const t of charts) {
        if (t.histogram && t.histogram.length) {
            new Chart(canvas(), {
                type: 'bar',
                data: { labels: t.histogram.map(b => b.label),
                        datasets: [{ label: t.target + ' histogram', data: t.histogram.map(b => b.count), backgroundColor: '#3b82f6' }] },
            });
        }
        if (t.qq && t.qq.length) {
            new Chart(canvas(), {
                type: 'scatter',
                data: { datasets: [{ label: t.target + ' normal Q-Q (ms)', data: t.qq, backgroundColor: '#22c55e' }] },
            });
        }
        if (t.series && t.series.length) {
            new Chart(canvas(), {
                type: 'line',
                data: { labels: t.series.map(p => p.seq),
                        datasets: [{ label: t.target + ' latency by issue order (ms)', data: t.series.map(p => p.elapsed),
                                     borderColor: '#64748b', pointRadius: 0 }] },
            });
        }
    }
</script>
</body>
</html>
`
