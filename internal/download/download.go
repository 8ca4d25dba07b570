// Package download streams a finished export archive to local disk and checks that every
// advertised byte arrived. A file that fails the check is removed.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"github.com/kebairia/cloudbak/internal/logger"
)

var (
	// ErrSizeMismatch means the local file does not have the advertised size.
	ErrSizeMismatch = errors.New("downloaded size does not match content-length")
	// ErrIncomplete means the stream stopped early and no size was advertised to check.
	ErrIncomplete = errors.New("download did not complete")
)

// TimestampFormat is the layout of the timestamp in artifact names.
const TimestampFormat = "20060102_150405"

// Streamer opens a streaming GET.
type Streamer interface {
	Stream(ctx context.Context, url string) (*http.Response, error)
}

// Result describes one download attempt. Expected is -1 when the server sent no length.
type Result struct {
	Path     string
	Expected int64
	Actual   int64
	Success  bool
}

// ProgressFunc is called after every chunk with the bytes written so far.
type ProgressFunc func(written, total int64)

// Options configures the Manager.
type Options struct {
	// ChunkSize is the size of each read/write.
	// Default: 64 KiB
	ChunkSize int

	// Progress replaces the default progress logging.
	Progress ProgressFunc
}

// Manager downloads artifacts into a directory.
type Manager struct {
	client Streamer
	clock  clock.Clock
	log    logger.Logger
	opts   Options
}

// NewManager returns a Manager using client for requests and clk for names and timings.
func NewManager(client Streamer, clk clock.Clock, log logger.Logger, opts Options) *Manager {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 * 1024
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{client: client, clock: clk, log: log, opts: opts}
}

// FileName returns the artifact name for service at t.
func FileName(service string, t time.Time) string {
	return fmt.Sprintf("%s-export-%s.zip", service, t.Format(TimestampFormat))
}

// Fetch downloads url into dir as FileName(service, now). Whatever way the copy ends, the
// file is checked against the advertised length afterwards and removed when short, long,
// or interrupted with no length to compare. The returned error explains a failed Result.
func (m *Manager) Fetch(ctx context.Context, url, dir, service string) (res Result, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create destination %s: %w", dir, err)
	}
	res = Result{
		Path:     filepath.Join(dir, FileName(service, m.clock.Now())),
		Expected: -1,
	}

	resp, err := m.client.Stream(ctx, url)
	if err != nil {
		return res, fmt.Errorf("download backup file: %w", err)
	}
	defer resp.Body.Close()

	res.Expected = resp.ContentLength
	if res.Expected >= 0 {
		m.log.Info("total size of backup file", "size", humanize.Bytes(uint64(res.Expected)))
	} else {
		m.log.Warn("server did not send a content-length, size will not be verified")
	}

	f, err := os.Create(res.Path)
	if err != nil {
		return res, fmt.Errorf("create %s: %w", res.Path, err)
	}

	streamErr := ErrIncomplete
	defer func() {
		_ = f.Close()
		res, err = m.settle(res, streamErr)
	}()

	m.log.Info("downloading", "path", res.Path)
	started := m.clock.Now()
	written, copyErr := m.copy(ctx, f, resp.Body, res.Expected)
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	streamErr = copyErr

	if copyErr == nil {
		m.log.Info("download finished",
			"bytes", humanize.Bytes(uint64(written)),
			"elapsed", m.clock.Now().Sub(started).Round(time.Millisecond).String(),
		)
	} else if errors.Is(copyErr, context.Canceled) {
		m.log.Warn("download is interrupted")
	} else {
		m.log.Error("error while downloading backup file", "error", copyErr)
	}
	return res, nil
}

// copy moves body into w in ChunkSize pieces and reports progress after each one.
func (m *Manager) copy(ctx context.Context, w io.Writer, body io.Reader, total int64) (int64, error) {
	buf := make([]byte, m.opts.ChunkSize)
	progress := m.opts.Progress
	if progress == nil {
		progress = newProgressLog(m.log).report
	}

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("write: %w", werr)
			}
			written += int64(n)
			progress(written, total)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, fmt.Errorf("read: %w", rerr)
		}
	}
}

// settle is the cleanup phase: it decides success from the file on disk.
func (m *Manager) settle(res Result, streamErr error) (Result, error) {
	info, statErr := os.Stat(res.Path)
	if statErr != nil {
		return res, fmt.Errorf("%w: %w", ErrIncomplete, statErr)
	}
	res.Actual = info.Size()

	switch {
	case res.Expected >= 0 && res.Actual != res.Expected:
		m.remove(res.Path)
		err := fmt.Errorf("%w: got %d bytes, expected %d", ErrSizeMismatch, res.Actual, res.Expected)
		if streamErr != nil {
			err = fmt.Errorf("%w: %w", err, streamErr)
		}
		return res, err
	case res.Expected < 0 && streamErr != nil:
		m.remove(res.Path)
		return res, fmt.Errorf("%w: %w", ErrIncomplete, streamErr)
	case streamErr != nil:
		m.log.Warn("stream reported an error after all bytes arrived", "error", streamErr)
	}

	res.Success = true
	m.log.Info("backup file is saved", "path", res.Path)
	return res, nil
}

func (m *Manager) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Error("cannot remove partial backup file", "path", path, "error", err)
		return
	}
	m.log.Warn("partial backup file removed", "path", path)
}

// progressLog logs every tenth of a known size, or every 100 MB otherwise.
type progressLog struct {
	log  logger.Logger
	last int64
}

func newProgressLog(log logger.Logger) *progressLog {
	return &progressLog{log: log, last: -1}
}

func (p *progressLog) report(written, total int64) {
	if total > 0 {
		step := written * 10 / total
		if step == p.last {
			return
		}
		p.last = step
		p.log.Info("download progress",
			"percent", step*10,
			"written", humanize.Bytes(uint64(written)),
		)
		return
	}
	step := written / (100 * 1000 * 1000)
	if step == p.last {
		return
	}
	p.last = step
	p.log.Info("download progress", "written", humanize.Bytes(uint64(written)))
}
