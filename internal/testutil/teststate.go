package testutil

import (
	"time"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
)

// NewTestRecord creates a finished RunRecord with sensible defaults for tests.
// Use functional options to override specific fields.
func NewTestRecord(opts ...func(*core.RunRecord)) *core.RunRecord {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &core.RunRecord{
		ID:             "run-test",
		State:          core.RunStateDone,
		DocumentSize:   42,
		DocumentDigest: "0000",
		Source:         "report.txt",
		Specialists:    []core.TaskID{"Cardiologist", "Psychologist", "Pulmonologist"},
		Outcomes: []core.Outcome{
			core.Success("Cardiologist", "No cardiac findings."),
			core.Success("Psychologist", "Signs of anxiety."),
			core.Success("Pulmonologist", "Clear lungs."),
		},
		Report:     "Likely anxiety-related symptoms.",
		CreatedAt:  created,
		FinishedAt: created.Add(3 * time.Second),
		Duration:   3 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
