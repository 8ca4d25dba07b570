package export

import (
	"net/http"
	"time"

	"github.com/kebairia/cloudbak/internal/parser"
)

const (
	wikiStartPath    = "/rest/obm/1.0/runbackup"
	wikiProgressPath = "/rest/obm/1.0/getprogress"
	wikiDownloadPath = "/download/"

	wikiEstimateMarker = "Estimated progress: "
)

// Wiki is the adapter for the wiki-style service. It polls a single progress endpoint at a
// fixed interval and is done once the response names a file.
type Wiki struct {
	base     string
	interval time.Duration
}

var _ Adapter = (*Wiki)(nil)

// NewWiki returns a Wiki adapter for base (the ".../wiki" root). A zero interval means 10s.
func NewWiki(base string, interval time.Duration) *Wiki {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Wiki{base: base, interval: interval}
}

func (w *Wiki) Service() Service { return Confluence }
func (w *Wiki) StartURL() string { return w.base + wikiStartPath }

func (w *Wiki) StartBody(attachments bool) ([]byte, error) { return startBody(attachments) }

// Classify treats 406 as the daily backup limit.
func (w *Wiki) Classify(status int) Phase {
	switch status {
	case http.StatusOK:
		return Started
	case http.StatusNotAcceptable:
		return RateLimited
	default:
		return Failed
	}
}

func (w *Wiki) TaskIDURL() string            { return "" }
func (w *Wiki) ProgressURL(string) string    { return w.base + wikiProgressPath }
func (w *Wiki) ArtifactField() string        { return "fileName" }
func (w *Wiki) ArtifactURL(id string) string { return w.base + wikiDownloadPath + id }
func (w *Wiki) Schedule() []time.Duration    { return []time.Duration{w.interval} }

// ParseProgress reads fileName, the estimated or alternative percentage and currentStatus.
func (w *Wiki) ParseProgress(body string) Progress {
	var p Progress
	if name, ok := parser.String(body, w.ArtifactField()); ok && name != "" {
		p.ArtifactID = name
		p.Done = true
	}
	if pct, ok := parser.PercentAfter(body, wikiEstimateMarker); ok {
		p.Percent, p.HasPercent = pct, true
	} else if pct, ok := parser.Percent(body, "percentage", "alternativePercentage"); ok {
		p.Percent, p.HasPercent = pct, true
	}
	p.Message, _ = parser.String(body, "currentStatus")
	if p.Done {
		p.Percent, p.HasPercent = 100, true
	}
	return p
}
