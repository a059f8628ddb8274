// Package metrics records a per-step report for a demo run.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// RunReport collects statistics for a full demo run.
type RunReport struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ms,omitempty"`
	Provider   string        `json:"provider"`
	Metric     string        `json:"metric"`
	Records    int           `json:"records"`
	Steps      []StepReport  `json:"steps"`
	Errors     []string      `json:"errors,omitempty"`
}

// StepReport is the outcome of one demo step.
type StepReport struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Count    int           `json:"count"`
	Failed   int           `json:"failed,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// New starts tracking a run.
func New(provider, metric string) *RunReport {
	return &RunReport{StartedAt: time.Now(), Provider: provider, Metric: metric}
}

// AddStep records a step. A non-nil err is also appended to Errors.
func (r *RunReport) AddStep(name string, d time.Duration, count, failed int, detail string, err error) {
	s := StepReport{Name: name, Duration: d, Count: count, Failed: failed, Detail: detail}
	if err != nil {
		s.Error = err.Error()
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
	}
	r.Steps = append(r.Steps, s)
}

// Finish marks the run as complete.
func (r *RunReport) Finish(records int) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.Records = records
}

// Failed reports whether any step returned an error.
func (r *RunReport) Failed() bool { return len(r.Errors) > 0 }

// PrintSummary writes a human-readable summary.
func (r *RunReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║          VECRAG DEMO REPORT          ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s ║\n", r.Duration.Round(time.Microsecond))
	fmt.Fprintf(w, "║ Provider:    %-23s ║\n", r.Provider)
	fmt.Fprintf(w, "║ Metric:      %-23s ║\n", r.Metric)
	fmt.Fprintf(w, "║ Records:     %-23d ║\n", r.Records)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ STEPS\n")
	for _, s := range r.Steps {
		status := "OK"
		switch {
		case s.Error != "":
			status = "ERROR"
		case s.Failed > 0:
			status = fmt.Sprintf("%d failed", s.Failed)
		}
		fmt.Fprintf(w, "║   %-18s %10s  n=%-3d %s\n", s.Name, s.Duration.Round(time.Microsecond), s.Count, status)
		if s.Detail != "" {
			fmt.Fprintf(w, "║     %s\n", s.Detail)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *RunReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
