// Package report renders a finished run for people and for machines: a
// colored per-component summary for the terminal and a JSON document that
// also carries each component's captured log lines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/nomis52/gostack/logging"
	"github.com/nomis52/gostack/pipeline"
)

var (
	okStyle   = color.New(color.FgGreen).SprintFunc()
	failStyle = color.New(color.FgRed).SprintFunc()
	warnStyle = color.New(color.FgYellow).SprintFunc()
	dimStyle  = color.New(color.Faint).SprintFunc()
	boldStyle = color.New(color.Bold).SprintFunc()
)

// WriteSummary prints one line per component followed by any warnings.
// Colors follow color.NoColor.
func WriteSummary(w io.Writer, run *pipeline.Run) error {
	verdict := okStyle("succeeded")
	if !run.Succeeded() {
		verdict = failStyle("failed")
	}
	if _, err := fmt.Fprintf(w, "%s %s in %s\n\n", boldStyle(run.Operation), verdict, run.Duration().Round(time.Millisecond)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	for _, c := range run.Components {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", mark(c.Outcome), c.Name, outcome(c.Outcome), detail(c))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(run.Warnings) > 0 {
		fmt.Fprintf(w, "\n%s\n", warnStyle("warnings:"))
		for _, warning := range run.Warnings {
			fmt.Fprintf(w, "  %s\n", warning)
		}
	}
	return nil
}

func mark(o pipeline.Outcome) string {
	switch o {
	case pipeline.OutcomeCompleted:
		return okStyle("✔")
	case pipeline.OutcomeFailed, pipeline.OutcomeFailedDownstream:
		return failStyle("✘")
	default:
		return warnStyle("•")
	}
}

func outcome(o pipeline.Outcome) string {
	switch o {
	case pipeline.OutcomeCompleted:
		return okStyle(string(o))
	case pipeline.OutcomeFailed, pipeline.OutcomeFailedDownstream:
		return failStyle(string(o))
	default:
		return warnStyle(string(o))
	}
}

func detail(c pipeline.ComponentResult) string {
	switch {
	case c.Error != "":
		return firstLine(c.Error)
	case len(c.BlockedBy) > 0:
		return dimStyle("blocked by " + strings.Join(c.BlockedBy, ", "))
	default:
		return dimStyle(c.State.String())
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// Report is the JSON document written after the operations of one
// invocation, one run per operation in order.
type Report struct {
	Runs []*pipeline.Run `json:"runs"`
	// Logs holds each component's captured log lines.
	Logs map[string][]logging.Entry `json:"logs,omitempty"`
}

// New builds a Report. collector may be nil.
func New(runs []*pipeline.Run, collector *logging.LogCollector) *Report {
	r := &Report{Runs: runs}
	if collector != nil {
		r.Logs = collector.All()
	}
	return r
}

// Write encodes the report as indented JSON.
func (r *Report) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteFile writes the report to path, replacing any previous one.
func (r *Report) WriteFile(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.Write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
