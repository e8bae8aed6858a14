package types

import "time"

// RunStats summarizes one ingestion run and is persisted as the last-known
// index summary
type RunStats struct {
	FilesIndexed    int     `json:"files_indexed" yaml:"files_indexed"`
	Chunks          int     `json:"chunks" yaml:"chunks"`
	DurationSeconds float64 `json:"duration_s" yaml:"duration_s"`
	UpdatedAt       string  `json:"updated_at" yaml:"updated_at"`
}

// NewRunStats stamps a stats record with the current UTC time
func NewRunStats(filesIndexed, chunks int, duration time.Duration) RunStats {
	return RunStats{
		FilesIndexed:    filesIndexed,
		Chunks:          chunks,
		DurationSeconds: duration.Seconds(),
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}
}
