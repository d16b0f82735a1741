package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTranscribeSuccess(t *testing.T) {
	var gotAuth, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transcriptions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFile = header.Filename
		body, _ := io.ReadAll(file)
		require.Equal(t, "fake audio bytes", string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"bom dia a todos","language":"pt","duration":42.5}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key", time.Minute, nil)
	result, err := c.Transcribe(context.Background(), "palestra.mp3", strings.NewReader("fake audio bytes"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "bom dia a todos", result.Text)
	assert.Equal(t, "pt", result.Language)
	assert.Equal(t, 42.5, result.Duration)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "palestra.mp3", gotFile)
}

func TestClientTranscribeProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Minute, nil)
	_, err := c.Transcribe(context.Background(), "a.mp3", strings.NewReader("x"), "audio/mpeg")
	require.Error(t, err)
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, http.StatusInternalServerError, provErr.StatusCode)
	assert.Contains(t, provErr.Message, "engine exploded")
}

func TestClientTranscribeMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Minute, nil)
	_, err := c.Transcribe(context.Background(), "a.mp3", strings.NewReader("x"), "audio/mpeg")
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Contains(t, provErr.Message, "malformed response")
}

func TestClientTranscribeEmptyTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"","language":"pt"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Minute, nil)
	_, err := c.Transcribe(context.Background(), "a.mp3", strings.NewReader("x"), "audio/mpeg")
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
}

func TestClientTranscribeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, "", 50*time.Millisecond, nil)
	_, err := c.Transcribe(context.Background(), "a.mp3", strings.NewReader("x"), "audio/mpeg")
	require.ErrorIs(t, err, ErrTimeout)
}
