// Package bench holds the types shared by the benchmark engine: the target
// description, the per-request Sample and the append-only Store that
// collects Samples for one target during a campaign.
//
// Subpackages build on these types:
//
//   - runner: executes warmup and measured phases against a Transport
//   - stats: reduces a Store into a Summary
//   - compare: compares two Summaries
//   - report: assembles Summaries and Comparisons into a serializable Report
//   - campaign: runs every target of a configuration end to end
//   - metrics: live counters for progress display
//   - rate: request pacing
//   - config: campaign configuration files
package bench
