package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/juju/clock"

	"github.com/kebairia/cloudbak/internal/logger"
	"github.com/kebairia/cloudbak/internal/session"
)

// Client is the slice of the authenticated session the engine needs.
type Client interface {
	Get(ctx context.Context, url string) (*session.Response, error)
	Post(ctx context.Context, url string, body []byte) (*session.Response, error)
}

// Engine runs the lifecycle start -> poll -> resolve for one service.
type Engine struct {
	adapter   Adapter
	initiator *Initiator
	poller    *Poller
	resolver  *Resolver
	log       logger.Logger
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	clock   clock.Clock
	log     logger.Logger
	session string
}

// WithClock sets the clock used for poll sleeps and timestamps.
func WithClock(clk clock.Clock) Option {
	return func(c *engineConfig) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *engineConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSession names the run; it is stamped on every ArtifactRef.
func WithSession(id string) Option {
	return func(c *engineConfig) {
		c.session = id
	}
}

// NewEngine wires the lifecycle components for adapter.
func NewEngine(adapter Adapter, client Client, records Records, opts ...Option) *Engine {
	cfg := engineConfig{
		clock: clock.WallClock,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log.With("service", string(adapter.Service()))

	return &Engine{
		adapter:   adapter,
		initiator: NewInitiator(client, adapter, log),
		poller:    NewPoller(client, adapter, cfg.clock, log),
		resolver:  NewResolver(adapter, records, cfg.clock, cfg.session, log),
		log:       log,
	}
}

// Run starts job and returns the location of the archive it produced. A rate-limited start
// falls back to the last known location without polling. Fatal errors are logged with the
// raw server response before being returned.
func (e *Engine) Run(ctx context.Context, job *BackupJob) (ArtifactRef, error) {
	e.log.Info("starting a new backup job",
		"account", job.Account,
		"attachments", job.Attachments,
	)

	ref, err := e.run(ctx, job)
	if err != nil {
		e.logFatal(err)
		if !job.State.Terminal() {
			job.fail(err.Error())
		}
		return ArtifactRef{}, err
	}
	return ref, nil
}

func (e *Engine) run(ctx context.Context, job *BackupJob) (ArtifactRef, error) {
	if err := e.initiator.Start(ctx, job); err != nil {
		return ArtifactRef{}, err
	}

	switch job.State.Phase {
	case RateLimited:
		ref, err := e.resolver.FromRecord()
		if err != nil {
			return ArtifactRef{}, err
		}
		job.State = JobState{Phase: Completed, Percent: 100, Artifact: ref}
		return ref, nil
	case Started, AlreadyRunning:
	default:
		return ArtifactRef{}, fmt.Errorf("unexpected job phase after start: %s", job.State.Phase)
	}

	prog, body, err := e.poller.Poll(ctx, job)
	if err != nil {
		return ArtifactRef{}, err
	}

	ref, err := e.resolver.FromProgress(prog, body)
	if err != nil {
		job.fail(err.Error())
		return ArtifactRef{}, err
	}
	job.State.Artifact = ref
	return ref, nil
}

// LastKnown resolves the recorded URL without starting a job.
func (e *Engine) LastKnown() (ArtifactRef, error) {
	ref, err := e.resolver.FromRecord()
	if err != nil {
		e.logFatal(err)
		return ArtifactRef{}, err
	}
	return ref, nil
}

func (e *Engine) logFatal(err error) {
	var fe *FatalError
	if errors.As(err, &fe) {
		e.log.Error("backup aborted",
			"error", fe.Error(),
			"status", fe.Status,
			"response", fe.Body,
		)
		return
	}
	e.log.Error("backup aborted", "error", err.Error())
}
