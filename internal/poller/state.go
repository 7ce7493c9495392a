package poller

import (
	"context"
	"errors"
	"time"

	"meetscribe/internal/backend"
	"meetscribe/internal/transcript"
)

// Status is the lifecycle state of a tracked job.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the job has stopped polling.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Substages reported while a job is in flight.
const (
	StageUploading    = "uploading"
	StageTranscribing = "transcribing"
	StageComplete     = "complete"
)

// ErrPollTimeout marks a job abandoned after the poll attempt budget.
var ErrPollTimeout = errors.New("transcription timed out")

// defaultFailureMessage is used when the backend reports failure
// without an error message.
const defaultFailureMessage = "transcription failed"

// PollState is the observable state of one tracked job. Callers read
// snapshots for display; only the job's own poll loop mutates it.
type PollState struct {
	Status       Status
	Stage        string
	Progress     int
	Transcript   string
	Segments     []transcript.Segment
	Err          string
	AttemptCount int
}

func (s PollState) clone() PollState {
	out := s
	if s.Segments != nil {
		out.Segments = append([]transcript.Segment(nil), s.Segments...)
	}
	return out
}

// Completion carries everything a finished job produced.
type Completion struct {
	Transcript      string
	Segments        []transcript.Segment
	Timelines       []transcript.SpeakerTimeline
	Names           transcript.SpeakerNameMap
	SpeakerMatches  []backend.SpeakerMatch
	BestMatch       *backend.SpeakerMatch
	LearningEntries []backend.LearningEntry
}

// CompletionHandler is invoked once when a job finishes with a transcript.
type CompletionHandler func(jobID string, result Completion)

// ErrorHandler is invoked once when a job fails or times out.
type ErrorHandler func(jobID string, err error)

// StatusQuerier fetches the current status of a job.
type StatusQuerier interface {
	JobStatus(ctx context.Context, jobID string) (backend.JobResult, error)
}

// TranscriptSource reads the stored transcript for a job independently
// of the status endpoint. Used as a completion backstop.
type TranscriptSource interface {
	GetTranscript(ctx context.Context, jobID string) (string, error)
}

// Config contains poller configuration
type Config struct {
	// Interval is the fixed delay between poll attempts.
	Interval time.Duration
	// MaxAttempts bounds how many status queries a job may issue
	// before it is forced into a timeout failure.
	MaxAttempts int
	// BackstopMinChars is the minimum transcript length, in
	// characters, for the backstop read to count as completion.
	BackstopMinChars int
}

// DefaultConfig returns the standard poll budget: one query every five
// seconds for up to thirty minutes.
func DefaultConfig() Config {
	return Config{
		Interval:         5 * time.Second,
		MaxAttempts:      360,
		BackstopMinChars: 50,
	}
}
