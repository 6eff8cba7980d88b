// Package store provides archive storage backends for FawnBot.
//
// The archive keeps the durable records produced by finished flows:
// gallery submissions, quiz round results, and media download jobs. An
// in-memory backend serves tests and ephemeral deployments; SQLite and
// PostgreSQL back real ones.
package store

import "time"

// Submission is one archived gallery submission.
type Submission struct {
	ID           int64     `json:"id"`
	Artist       string    `json:"artist"`
	SourcePrefix string    `json:"source_prefix"`
	ArtworkID    string    `json:"artwork_id"`
	ImagePath    string    `json:"image_path"`
	SubmittedBy  int64     `json:"submitted_by"`
	GroupID      int64     `json:"group_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// QuizResult is one archived quiz round. WinnerID is zero for rounds that
// timed out.
type QuizResult struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"group_id"`
	Song      string    `json:"song"`
	StarterID int64     `json:"starter_id"`
	WinnerID  int64     `json:"winner_id,omitempty"`
	TimedOut  bool      `json:"timed_out"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatus is the lifecycle state of a media download job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// MediaJob is one archived media download job.
type MediaJob struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Kind        string    `json:"kind"`
	FormatID    string    `json:"format_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Artist      string    `json:"artist,omitempty"`
	RequestedBy int64     `json:"requested_by"`
	Status      JobStatus `json:"status"`
	LastError   string    `json:"last_error,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is the archive interface shared by all backends.
type Store interface {
	AddSubmission(s Submission) (int64, error)
	GetSubmissions() ([]Submission, error)

	AddQuizResult(r QuizResult) (int64, error)
	GetQuizResults(groupID int64) ([]QuizResult, error)

	AddMediaJob(j MediaJob) error
	UpdateMediaJob(id string, status JobStatus, lastError, outputPath string) error
	GetMediaJob(id string) (*MediaJob, error)
	GetMediaJobs() ([]MediaJob, error)

	Close() error
}
