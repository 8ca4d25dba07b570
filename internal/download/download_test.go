package download

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/cloudbak/internal/logger"
	"github.com/kebairia/cloudbak/internal/session"
)

var started = time.Date(2026, 10, 18, 9, 30, 5, 0, time.UTC)

func newManager(opts Options) *Manager {
	return NewManager(session.New(session.Options{Username: "u", Token: "t"}),
		testclock.NewClock(started), logger.Nop(), opts)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "jira-export-20261018_093005.zip", FileName("jira", started))
}

func TestFetch_Complete(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 10_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	var calls int
	var last int64
	m := newManager(Options{ChunkSize: 1024, Progress: func(written, total int64) {
		calls++
		last = written
		assert.Equal(t, int64(len(payload)), total)
	}})

	dir := filepath.Join(t.TempDir(), "nested", "backups")
	res, err := m.Fetch(context.Background(), srv.URL+"/f.zip", dir, "jira")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, filepath.Join(dir, "jira-export-20261018_093005.zip"), res.Path)
	assert.Equal(t, int64(len(payload)), res.Expected)
	assert.Equal(t, res.Expected, res.Actual)
	assert.GreaterOrEqual(t, calls, 10)
	assert.Equal(t, int64(len(payload)), last)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetch_UnknownLengthSkipsVerification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("part one "))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("part two"))
	}))
	defer srv.Close()

	res, err := newManager(Options{}).Fetch(context.Background(), srv.URL, t.TempDir(), "confluence")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(-1), res.Expected)
	assert.Equal(t, int64(len("part one part two")), res.Actual)
}

func TestFetch_ShortBodyIsDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 100\r\nContent-Type: application/zip\r\n\r\n")
		_, _ = buf.Write(bytes.Repeat([]byte("y"), 40))
		_ = buf.Flush()
	}))
	defer srv.Close()

	dir := t.TempDir()
	res, err := newManager(Options{ChunkSize: 16}).Fetch(context.Background(), srv.URL, dir, "jira")
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.False(t, res.Success)
	assert.Equal(t, int64(100), res.Expected)
	assert.Equal(t, int64(40), res.Actual)
	assert.NoFileExists(t, res.Path)
}

func TestFetch_CancelledMidStreamIsDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000000")
		_, _ = w.Write(bytes.Repeat([]byte("z"), 4096))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newManager(Options{ChunkSize: 512, Progress: func(int64, int64) { cancel() }})

	res, err := m.Fetch(ctx, srv.URL, t.TempDir(), "jira")
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Success)
	assert.NoFileExists(t, res.Path)
}

func TestFetch_ErrorStatusCreatesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := newManager(Options{}).Fetch(context.Background(), srv.URL, dir, "jira")
	require.ErrorIs(t, err, session.ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSettle(t *testing.T) {
	m := newManager(Options{})
	write := func(t *testing.T, n int) string {
		path := filepath.Join(t.TempDir(), "a.zip")
		require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("a"), n), 0o644))
		return path
	}

	t.Run("larger than advertised", func(t *testing.T) {
		path := write(t, 10)
		res, err := m.settle(Result{Path: path, Expected: 5}, nil)
		assert.ErrorIs(t, err, ErrSizeMismatch)
		assert.False(t, res.Success)
		assert.NoFileExists(t, path)
	})

	t.Run("unknown length with stream error", func(t *testing.T) {
		path := write(t, 10)
		_, err := m.settle(Result{Path: path, Expected: -1}, context.Canceled)
		assert.ErrorIs(t, err, ErrIncomplete)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoFileExists(t, path)
	})

	t.Run("matching size survives a late error", func(t *testing.T) {
		path := write(t, 10)
		res, err := m.settle(Result{Path: path, Expected: 10}, context.Canceled)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.FileExists(t, path)
	})
}
