package export

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/juju/clock"

	"github.com/kebairia/cloudbak/internal/logger"
	"github.com/kebairia/cloudbak/internal/parser"
)

// Poller follows a started job until it completes or fails.
type Poller struct {
	client  Client
	adapter Adapter
	clock   clock.Clock
	log     logger.Logger
}

// NewPoller returns a Poller that sleeps on clk between polls.
func NewPoller(client Client, adapter Adapter, clk clock.Clock, log logger.Logger) *Poller {
	return &Poller{client: client, adapter: adapter, clock: clk, log: log}
}

// Poll blocks until job completes, returning the completing progress and the raw body it
// came from. job.State is updated after every poll; Percent never decreases within one call.
func (p *Poller) Poll(ctx context.Context, job *BackupJob) (Progress, string, error) {
	if p.adapter.TaskIDURL() != "" && job.TaskID == "" {
		id, err := p.taskID(ctx)
		if err != nil {
			job.fail(err.Error())
			return Progress{}, "", err
		}
		job.TaskID = id
		p.log.Debug("following export task", "task_id", id)
	}

	backoff := NewBackoff(p.adapter.Schedule())
	url := p.adapter.ProgressURL(job.TaskID)

	for {
		p.log.Debug("monitoring the progress")
		resp, err := p.client.Get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return Progress{}, "", ctx.Err()
			}
			job.fail(err.Error())
			return Progress{}, "", fatal(fmt.Errorf("%w: %w", ErrPollFailed, err), 0, "")
		}
		if parser.HasError(resp.Body) {
			job.fail(resp.Body)
			return Progress{}, "", fatal(ErrInBandError, resp.StatusCode, resp.Body)
		}
		if resp.StatusCode != http.StatusOK {
			job.fail(resp.Body)
			return Progress{}, "", fatal(ErrPollFailed, resp.StatusCode, resp.Body)
		}

		prog := p.adapter.ParseProgress(resp.Body)
		if prog.Done {
			job.State = JobState{Phase: Completed, Percent: 100, Message: prog.Message}
			p.log.Info("backup process is complete")
			return prog, resp.Body, nil
		}

		percent := job.State.Percent
		if prog.HasPercent && prog.Percent > percent {
			percent = prog.Percent
		}
		job.State = JobState{Phase: InProgress, Percent: percent, Message: prog.Message}

		wait, changed := backoff.Observe(percent, prog.HasPercent)
		switch {
		case changed:
			p.log.Info("backup progress",
				"action", prog.Message,
				"progress", fmt.Sprintf("%d%%", percent),
			)
		case !prog.HasPercent:
			p.log.Debug("no progress signal yet", "response", resp.Body)
		}

		select {
		case <-ctx.Done():
			return Progress{}, "", ctx.Err()
		case <-p.clock.After(wait):
		}
	}
}

// taskID asks the service which task the current export runs as.
func (p *Poller) taskID(ctx context.Context) (string, error) {
	resp, err := p.client.Get(ctx, p.adapter.TaskIDURL())
	if err != nil {
		return "", fatal(fmt.Errorf("%w: %w", ErrMissingTaskID, err), 0, "")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fatal(ErrMissingTaskID, resp.StatusCode, resp.Body)
	}
	id, ok := parseTaskID(resp.Body)
	if !ok {
		return "", fatal(ErrMissingTaskID, resp.StatusCode, resp.Body)
	}
	return id, nil
}

// parseTaskID accepts a bare or quoted token; anything with structure or spaces is rejected.
func parseTaskID(body string) (string, bool) {
	id := strings.Trim(strings.TrimSpace(body), `"`)
	if id == "" || strings.ContainsAny(id, " \t\r\n{}[]<>\"") {
		return "", false
	}
	return id, true
}
