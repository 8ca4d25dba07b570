package export

import (
	"context"
	"fmt"

	"github.com/kebairia/cloudbak/internal/logger"
	"github.com/kebairia/cloudbak/internal/parser"
)

// Initiator issues the start request and classifies the answer.
type Initiator struct {
	client  Client
	adapter Adapter
	log     logger.Logger
}

// NewInitiator returns an Initiator for adapter.
func NewInitiator(client Client, adapter Adapter, log logger.Logger) *Initiator {
	return &Initiator{client: client, adapter: adapter, log: log}
}

// Start posts the start request and moves job to Started, RateLimited or AlreadyRunning.
// Anything else fails the job and returns a *FatalError; the start is never retried.
func (i *Initiator) Start(ctx context.Context, job *BackupJob) error {
	body, err := i.adapter.StartBody(job.Attachments)
	if err != nil {
		job.fail(err.Error())
		return fatal(fmt.Errorf("%w: %w", ErrInitiationFailed, err), 0, "")
	}

	resp, err := i.client.Post(ctx, i.adapter.StartURL(), body)
	if err != nil {
		job.fail(err.Error())
		return fatal(fmt.Errorf("%w: %w", ErrInitiationFailed, err), 0, "")
	}

	phase := i.adapter.Classify(resp.StatusCode)
	if phase == Started && parser.HasError(resp.Body) {
		phase = Failed
	}

	switch phase {
	case Started:
		i.log.Info("authentication is successful, backup is starting")
	case RateLimited:
		i.log.Warn("backup start refused, a backup was started too recently",
			"status", resp.StatusCode,
			"response", resp.Body,
		)
	case AlreadyRunning:
		i.log.Info("another backup is already in progress, following it")
	default:
		job.fail(resp.Body)
		return fatal(ErrInitiationFailed, resp.StatusCode, resp.Body)
	}

	job.State = JobState{Phase: phase}
	return nil
}
