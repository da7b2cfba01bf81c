package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *OllamaClient {
	t.Helper()
	c, err := NewOllamaClient(OllamaConfig{
		BaseURL:     url + "/",
		Model:       "mistral-nemo",
		NumCtx:      32768,
		Temperature: 0,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestNewOllamaClient_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost", "http://%zz"} {
		_, err := NewOllamaClient(OllamaConfig{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestOllamaClient_Chat_Streams(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, `{"message":{"role":"assistant","content":"Aspirin "},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":"81 mg."},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	var chunks []string
	answer, err := newTestClient(t, srv.URL).Chat(context.Background(), "the prompt", func(s string) {
		chunks = append(chunks, s)
	})

	require.NoError(t, err)
	assert.Equal(t, "Aspirin 81 mg.", answer)
	assert.Equal(t, []string{"Aspirin ", "81 mg."}, chunks)

	assert.Equal(t, "mistral-nemo", got.Model)
	require.NotNil(t, got.Stream)
	assert.True(t, *got.Stream)
	assert.Equal(t, 32768.0, got.Options["num_ctx"])
	assert.Equal(t, 0.0, got.Options["temperature"])
	require.Len(t, got.Messages, 1)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "the prompt", got.Messages[0].Content)
}

func TestOllamaClient_Chat_SendsZeroTemperature(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		io.WriteString(w, `{"done":true}`+"\n")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"num_ctx":32768,"temperature":0}`, string(raw["options"]))
}

func TestOllamaClient_Chat_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'mistral-nemo' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), "p", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOllamaClient_Chat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, "{}\n")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Chat(context.Background(), "p", nil)

	var statusErr api.StatusError
	require.True(t, errors.As(err, &statusErr), "expected api.StatusError, got %v", err)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestOllamaClient_Chat_ErrorChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"role":"assistant","content":"partial"},"done":false}`+"\n")
		io.WriteString(w, `{"error":"out of memory"}`+"\n")
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Chat(context.Background(), "p", nil)

	require.EqualError(t, err, "ollama api: out of memory")
	assert.Equal(t, "partial", answer)
}

func TestOllamaClient_Chat_StreamEndsEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"role":"assistant","content":"Aspirin"},"done":false}`+"\n")
	}))
	defer srv.Close()

	answer, err := newTestClient(t, srv.URL).Chat(context.Background(), "p", nil)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "Aspirin", answer)
}

func TestOllamaClient_Chat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Chat(context.Background(), "p", nil)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "ollama api:"), err.Error())
}
