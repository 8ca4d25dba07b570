package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_SendsAuthAndJSONHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin@example.com", user)
		assert.Equal(t, "secret", token)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":"b"}`, string(body))
		w.WriteHeader(http.StatusNotAcceptable)
		io.WriteString(w, "too soon")
	}))
	defer server.Close()

	s := New(Options{Username: "admin@example.com", Token: "secret"})
	resp, err := s.Post(context.Background(), server.URL, []byte(`{"a":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
	assert.Equal(t, "too soon", resp.Body)
}

func TestGet_CapsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "0123456789")
	}))
	defer server.Close()

	s := New(Options{MaxBodyBytes: 4})
	resp, err := s.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", resp.Body)
}

func TestStream_StatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/denied":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			io.WriteString(w, "payload")
		}
	}))
	defer server.Close()

	s := New(DefaultOptions())
	ctx := context.Background()

	_, err := s.Stream(ctx, server.URL+"/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Stream(ctx, server.URL+"/denied")
	assert.ErrorIs(t, err, ErrUnauthorized)

	resp, err := s.Stream(ctx, server.URL+"/ok")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
