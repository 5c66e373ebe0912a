package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether a job in this state will not run again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// Job sources.
const (
	SourceCLI   = "cli"
	SourceBatch = "batch"
	SourceRedis = "redis"
)

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   Payload
}

// Payload is what a worker needs to dub one video.
type Payload struct {
	URL           string `json:"url"`
	Target        string `json:"target"`
	Voice         string `json:"voice,omitempty"`
	Output        string `json:"output,omitempty"`
	SkipSynthesis bool   `json:"skip_synthesis,omitempty"`
}

// Outcome is the summary a successful job leaves behind.
type Outcome struct {
	OutputPath string `json:"output_path"`
	Title      string `json:"title,omitempty"`
	Segments   int    `json:"segments"`
	Warnings   int    `json:"warnings"`
}

type DubbingJob struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	DedupeKey string    `json:"dedupe_key"`
	Payload   Payload   `json:"payload"`
	Status    Status    `json:"status"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DedupeKey identifies a request for the same video in the same language.
func DedupeKey(url, target string) string {
	return url + "|" + target
}
