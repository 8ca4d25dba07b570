package export

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"

	"github.com/kebairia/cloudbak/internal/location"
	"github.com/kebairia/cloudbak/internal/session"
)

// recordingClock never sleeps; it records every requested wait.
type recordingClock struct {
	clock.Clock

	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{
		Clock: clock.WallClock,
		now:   time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
}

func (c *recordingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *recordingClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// fakeService scripts the start, task id and progress endpoints of either service.
type fakeService struct {
	t *testing.T

	startStatus int
	startBody   string
	taskID      string
	taskStatus  int
	progress    []string

	mu            sync.Mutex
	startCalls    int
	progressCalls int
	lastStart     string
	lastTaskQuery string
}

func (f *fakeService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/runbackup"):
			body, _ := io.ReadAll(r.Body)
			f.lastStart = string(body)
			f.startCalls++
			status := f.startStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			io.WriteString(w, f.startBody)
		case strings.HasSuffix(r.URL.Path, "/lastTaskId"):
			status := f.taskStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			io.WriteString(w, f.taskID)
		case strings.HasSuffix(strings.ToLower(r.URL.Path), "/getprogress"):
			f.lastTaskQuery = r.URL.Query().Get("taskId")
			if f.progressCalls >= len(f.progress) {
				f.t.Errorf("unexpected poll %d", f.progressCalls+1)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			io.WriteString(w, f.progress[f.progressCalls])
			f.progressCalls++
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeService) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progressCalls
}

type harness struct {
	server  *httptest.Server
	service *fakeService
	clock   *recordingClock
	records *location.Store
	client  *session.Session
}

func newHarness(t *testing.T, svc *fakeService) *harness {
	t.Helper()
	svc.t = t
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	return &harness{
		server:  server,
		service: svc,
		clock:   newRecordingClock(),
		records: location.NewStore(t.TempDir()),
		client:  session.New(session.Options{Username: "admin", Token: "token"}),
	}
}

func (h *harness) engine(adapter Adapter) *Engine {
	return NewEngine(adapter, h.client, h.records,
		WithClock(h.clock),
		WithSession("test-session"),
	)
}
