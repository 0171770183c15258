package model

import "time"

// ReloadedEvent announces that a reload finished with a passing verdict and
// the index may be served.
type ReloadedEvent struct {
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Sections   int       `json:"sections"`
	Rows       int64     `json:"rows"`
	FinishedAt time.Time `json:"finished_at"`
}

// ReloadRequest is the queue payload asking the indexer to run once.
// An empty SourcePath means the configured document.
type ReloadRequest struct {
	RequestID   string `json:"request_id"`
	SourcePath  string `json:"source_path,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}
