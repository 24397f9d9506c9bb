package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Run is the result of one aggregation, handed to every sink.
type Run struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Query       Query           `json:"-"`
	Config      TransformConfig `json:"-"`
	Unit        string          `json:"unit"`
	Diagnostics Diagnostics     `json:"diagnostics"`
	Records     []SummaryRecord `json:"records"`
}

// NewRun stamps records with a generation time and a deterministic run ID.
func NewRun(q Query, cfg TransformConfig, diag Diagnostics, records []SummaryRecord) Run {
	now := clock.Now().UTC()
	return Run{
		ID:          generateRunID(q, cfg, now),
		GeneratedAt: now,
		Query:       q,
		Config:      cfg,
		Unit:        cfg.Unit.String(),
		Diagnostics: diag,
		Records:     records,
	}
}

// generateRunID hashes the run parameters and timestamp so the same run
// replayed into a sink produces the same ID.
func generateRunID(q Query, cfg TransformConfig, at time.Time) string {
	threshold := "off"
	if cfg.Threshold != nil {
		threshold = fmt.Sprintf("%g", *cfg.Threshold)
	}
	input := fmt.Sprintf("%s|%d|%d|%s|%s|%t|%s",
		strings.Join(q.NormalizedCountries(), ","), q.StartYear, q.EndYear,
		cfg.Unit, threshold, cfg.Aggregate, at.Format(time.RFC3339Nano))
	hash := sha256.Sum256([]byte(input))
	return "run-" + hex.EncodeToString(hash[:8])
}
