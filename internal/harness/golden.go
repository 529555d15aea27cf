package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lutwrap/internal/ir"
)

// toCanonicalMap converts a TraceEvent to a map[string]any for canonical
// JSON serialization. Zero-valued optional fields are omitted.
func (e TraceEvent) toCanonicalMap() map[string]any {
	m := map[string]any{
		"step":    e.Step,
		"op":      e.Op,
		"slot":    int64(e.Slot),
		"outcome": e.Outcome,
	}
	optional := map[string]string{
		"directory_code": e.DirectoryCode,
		"request_id":     e.RequestID,
		"record":         e.Record,
		"table":          e.Table,
		"event":          e.Event,
	}
	for k, v := range optional {
		if v != "" {
			m[k] = v
		}
	}
	if e.Added != 0 {
		m["added"] = e.Added
	}
	if e.Total != 0 {
		m["total"] = int64(e.Total)
	}
	if e.ReadyAt != 0 {
		m["ready_at"] = int64(e.ReadyAt)
	}
	if e.Reclaimed != 0 {
		m["reclaimed"] = int64(e.Reclaimed)
	}
	if e.EventSeq != 0 {
		m["event_seq"] = e.EventSeq
	}
	return m
}

// FormatTrace renders a trace as one canonical JSON object per line.
func FormatTrace(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range trace {
		line, err := ir.MarshalCanonical(ev.toCanonicalMap())
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass; the golden comparison
// fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceText, err := FormatTrace(result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceText)
	return nil
}
