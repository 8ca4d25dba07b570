package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Progress is what one poll response says about the job. A zero value means the response
// carried no usable signal, which is not an error.
type Progress struct {
	Percent    int
	HasPercent bool
	Message    string
	ArtifactID string
	Done       bool
}

// Adapter supplies everything that differs between services: endpoints, how a start status
// is classified, where the progress signals live and how long to wait between polls.
type Adapter interface {
	Service() Service

	StartURL() string
	StartBody(attachments bool) ([]byte, error)
	// Classify maps a start response status (without an in-band error) to Started,
	// RateLimited, AlreadyRunning or Failed.
	Classify(status int) Phase

	// TaskIDURL is empty for services that poll without a task id.
	TaskIDURL() string
	ProgressURL(taskID string) string
	ParseProgress(body string) Progress

	// ArtifactField names the field of the completed response that identifies the archive.
	ArtifactField() string
	ArtifactURL(id string) string

	// Schedule lists poll intervals; the first is the base and the last is the cap.
	Schedule() []time.Duration
}

// startRequest is the body of the start call. The services expect string booleans.
type startRequest struct {
	IncludeAttachments string `json:"cbAttachments"`
	ExportToCloud      string `json:"exportToCloud"`
}

func startBody(attachments bool) ([]byte, error) {
	body, err := json.Marshal(startRequest{
		IncludeAttachments: fmt.Sprint(attachments),
		ExportToCloud:      "true",
	})
	if err != nil {
		return nil, fmt.Errorf("encode start request: %w", err)
	}
	return body, nil
}

// SiteURL returns the root URL of an account, honouring an explicit override.
func SiteURL(site, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return "https://" + site + ".atlassian.net"
}

// PollOptions tune the poll intervals of the adapters built by ForService.
type PollOptions struct {
	WikiInterval    time.Duration
	TrackerSchedule []time.Duration
}

// ForService builds the adapter for service rooted at siteURL.
func ForService(service Service, siteURL string, poll PollOptions) (Adapter, error) {
	switch service {
	case Confluence:
		return NewWiki(siteURL+"/wiki", poll.WikiInterval), nil
	case Jira:
		return NewTracker(siteURL, poll.TrackerSchedule...), nil
	default:
		return nil, fmt.Errorf("no adapter for service %q", service)
	}
}

// Backoff picks the wait before the next poll from the last seen percent. Every poll that
// leaves the percent unchanged moves one step along the schedule; a change resets it.
type Backoff struct {
	schedule []time.Duration
	last     int
	stalls   int
}

// NewBackoff returns a Backoff over schedule. An empty schedule polls every 10 seconds.
func NewBackoff(schedule []time.Duration) *Backoff {
	if len(schedule) == 0 {
		schedule = []time.Duration{10 * time.Second}
	}
	return &Backoff{schedule: schedule, last: -1}
}

// Observe records the percent of one poll and returns the wait before the next poll and
// whether the percent changed. A poll without a percent leaves the escalation untouched.
func (b *Backoff) Observe(percent int, seen bool) (time.Duration, bool) {
	changed := false
	switch {
	case !seen:
	case percent != b.last:
		b.last = percent
		b.stalls = 0
		changed = true
	default:
		b.stalls++
	}
	return b.current(), changed
}

// Last returns the last percent seen, or -1.
func (b *Backoff) Last() int { return b.last }

func (b *Backoff) current() time.Duration {
	i := b.stalls
	if i >= len(b.schedule) {
		i = len(b.schedule) - 1
	}
	return b.schedule[i]
}
