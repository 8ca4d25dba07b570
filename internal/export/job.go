// Package export drives a server-side export job through its lifecycle: start it, poll it until
// it finishes, and resolve the archive it produced into a download URL. The two supported
// services share one engine; everything service specific lives behind Adapter.
package export

import (
	"fmt"
	"time"
)

// Service names a supported platform. The value is also used in artifact and record names.
type Service string

const (
	// Confluence is the wiki-style service.
	Confluence Service = "confluence"
	// Jira is the issue-tracker-style service.
	Jira Service = "jira"
)

// ParseService maps a command-line name to a Service.
func ParseService(name string) (Service, error) {
	switch Service(name) {
	case Confluence, Jira:
		return Service(name), nil
	default:
		return "", fmt.Errorf("unknown service %q (want %q or %q)", name, Confluence, Jira)
	}
}

// Phase is the coarse state of a BackupJob.
type Phase int

const (
	NotStarted Phase = iota
	Started
	RateLimited
	AlreadyRunning
	InProgress
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not-started"
	case Started:
		return "started"
	case RateLimited:
		return "rate-limited"
	case AlreadyRunning:
		return "already-running"
	case InProgress:
		return "in-progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// JobState is the current state of a job. Percent and Message are meaningful while
// InProgress, Artifact once Completed and Reason once Failed.
type JobState struct {
	Phase    Phase
	Percent  int
	Message  string
	Artifact ArtifactRef
	Reason   string
}

// Terminal reports whether polling should stop.
func (s JobState) Terminal() bool {
	return s.Phase == Completed || s.Phase == Failed
}

// ArtifactRef points at a downloadable archive.
type ArtifactRef struct {
	URL string
	// Session identifies the run that discovered the URL.
	Session      string
	DiscoveredAt time.Time
	// FromRecord is set when the URL came from the last known location record
	// instead of a job completed in this run.
	FromRecord bool
}

// BackupJob is one export request against one account.
type BackupJob struct {
	Service     Service
	Account     string
	Attachments bool
	// TaskID is assigned by services that need one to report progress.
	TaskID string
	State  JobState
}

// NewJob returns a job that has not been started yet.
func NewJob(service Service, account string, attachments bool) *BackupJob {
	return &BackupJob{
		Service:     service,
		Account:     account,
		Attachments: attachments,
		State:       JobState{Phase: NotStarted},
	}
}

func (j *BackupJob) fail(reason string) {
	j.State = JobState{Phase: Failed, Percent: j.State.Percent, Reason: reason}
}
