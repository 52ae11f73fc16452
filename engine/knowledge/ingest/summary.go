package ingest

import (
	"time"

	"github.com/compozy/nutrilens/engine/knowledge"
)

// FileResult is the outcome of one file in a run.
type FileResult struct {
	Path    string `json:"path"`
	Digest  string `json:"digest,omitempty"`
	Outcome string `json:"outcome"`
	Chunks  int    `json:"chunks,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Summary aggregates a run.
type Summary struct {
	RunID            string        `json:"run_id"`
	DataPath         string        `json:"data_path"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Files            []FileResult  `json:"files"`
	Ingested         int           `json:"ingested"`
	SkippedDuplicate int           `json:"skipped_duplicate"`
	SkippedEmpty     int           `json:"skipped_empty"`
	Failed           int           `json:"failed"`
	Chunks           int           `json:"chunks"`
}

func (s *Summary) add(result FileResult) {
	s.Files = append(s.Files, result)
	switch result.Outcome {
	case knowledge.OutcomeIngested:
		s.Ingested++
		s.Chunks += result.Chunks
	case knowledge.OutcomeSkippedDuplicate:
		s.SkippedDuplicate++
	case knowledge.OutcomeSkippedEmpty:
		s.SkippedEmpty++
	case knowledge.OutcomeFailed:
		s.Failed++
	}
}
