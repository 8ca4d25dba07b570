package export

import (
	"net/http"
	"net/url"
	"time"

	"github.com/kebairia/cloudbak/internal/parser"
)

const (
	trackerStartPath    = "/rest/backup/1/export/runbackup"
	trackerTaskIDPath   = "/rest/backup/1/export/lastTaskId"
	trackerProgressPath = "/rest/backup/1/export/getProgress?taskId="
	trackerDownloadPath = "/plugins/servlet/"
)

// DefaultTrackerSchedule escalates the poll interval while the percent does not move.
var DefaultTrackerSchedule = []time.Duration{
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Tracker is the adapter for the issue-tracker-style service. Progress is reported per task
// and the job is done at 100 percent.
type Tracker struct {
	base     string
	schedule []time.Duration
}

var _ Adapter = (*Tracker)(nil)

// NewTracker returns a Tracker adapter for base. Without a schedule DefaultTrackerSchedule
// is used.
func NewTracker(base string, schedule ...time.Duration) *Tracker {
	if len(schedule) == 0 {
		schedule = DefaultTrackerSchedule
	}
	return &Tracker{base: base, schedule: schedule}
}

func (t *Tracker) Service() Service { return Jira }
func (t *Tracker) StartURL() string { return t.base + trackerStartPath }

func (t *Tracker) StartBody(attachments bool) ([]byte, error) { return startBody(attachments) }

// Classify treats 412 as a backup that is already running server-side.
func (t *Tracker) Classify(status int) Phase {
	switch status {
	case http.StatusOK:
		return Started
	case http.StatusPreconditionFailed:
		return AlreadyRunning
	default:
		return Failed
	}
}

func (t *Tracker) TaskIDURL() string { return t.base + trackerTaskIDPath }

func (t *Tracker) ProgressURL(taskID string) string {
	return t.base + trackerProgressPath + url.QueryEscape(taskID)
}

func (t *Tracker) ArtifactField() string        { return "result" }
func (t *Tracker) ArtifactURL(id string) string { return t.base + trackerDownloadPath + id }
func (t *Tracker) Schedule() []time.Duration    { return t.schedule }

// ParseProgress reads the integer progress, the message and the result file.
func (t *Tracker) ParseProgress(body string) Progress {
	var p Progress
	if pct, ok := parser.Percent(body, "progress"); ok {
		p.Percent, p.HasPercent = pct, true
	}
	p.Message, _ = parser.String(body, "message")
	p.ArtifactID, _ = parser.String(body, t.ArtifactField())
	p.Done = p.HasPercent && p.Percent == 100
	return p
}
