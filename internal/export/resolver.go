package export

import (
	"errors"
	"fmt"

	"github.com/juju/clock"

	"github.com/kebairia/cloudbak/internal/location"
	"github.com/kebairia/cloudbak/internal/logger"
)

// Records is the last known location store, one slot per service.
type Records interface {
	Load(service string) (string, error)
	Save(service, url string) error
}

// Resolver turns a completed job into a download URL, or falls back to the recorded one.
type Resolver struct {
	adapter Adapter
	records Records
	clock   clock.Clock
	session string
	log     logger.Logger
}

// NewResolver returns a Resolver that stamps refs with session.
func NewResolver(adapter Adapter, records Records, clk clock.Clock, session string, log logger.Logger) *Resolver {
	return &Resolver{adapter: adapter, records: records, clock: clk, session: session, log: log}
}

// FromProgress turns the archive identifier of a completed poll into a URL and records it.
// body is the raw response prog was parsed from, kept for error reporting. Resolving the
// same progress twice yields the same URL and leaves a single record.
func (r *Resolver) FromProgress(prog Progress, body string) (ArtifactRef, error) {
	if prog.ArtifactID == "" {
		return ArtifactRef{}, fatal(
			fmt.Errorf("%w: field %q", ErrMissingArtifact, r.adapter.ArtifactField()), 0, body)
	}

	ref := ArtifactRef{
		URL:          r.adapter.ArtifactURL(prog.ArtifactID),
		Session:      r.session,
		DiscoveredAt: r.clock.Now(),
	}

	service := string(r.adapter.Service())
	if err := r.records.Save(service, ref.URL); err != nil {
		// the URL is still usable for this run
		r.log.Error("could not save the backup file URL", "error", err)
	} else {
		r.log.Info("backup file URL is saved", "service", service)
	}
	r.log.Info("backup file can also be downloaded from", "url", ref.URL)
	return ref, nil
}

// FromRecord returns the last recorded URL for the adapter's service.
func (r *Resolver) FromRecord() (ArtifactRef, error) {
	url, err := r.records.Load(string(r.adapter.Service()))
	if errors.Is(err, location.ErrNoRecord) {
		return ArtifactRef{}, fatal(fmt.Errorf("%w: %w", ErrNothingToResolve, err), 0, "")
	}
	if err != nil {
		return ArtifactRef{}, fatal(fmt.Errorf("read last known location: %w", err), 0, "")
	}
	r.log.Info("using the last known backup file", "url", url)
	return ArtifactRef{
		URL:          url,
		Session:      r.session,
		DiscoveredAt: r.clock.Now(),
		FromRecord:   true,
	}, nil
}
