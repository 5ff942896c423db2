package net

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPClient(t *testing.T) {
	client := GetHTTPClient()
	assert.NotNil(t, client)
	assert.Equal(t, reqTransport, client.Transport)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, clientAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var out map[string]string
	require.NoError(t, GetJSON(context.Background(), JoinURL(srv.URL, "/health"), &out))
	assert.Equal(t, "ok", out["status"])
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]float64{"double": in["v"] * 2})
	}))
	defer srv.Close()

	var out map[string]float64
	require.NoError(t, PostJSON(context.Background(), srv.URL, map[string]float64{"v": 2}, &out))
	assert.Equal(t, 4.0, out["double"])
}

func TestGetJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "models not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var out map[string]string
	err := GetJSON(context.Background(), srv.URL, &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "models not loaded", se.Body)
}

func TestGetJSON_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]string
	assert.Error(t, GetJSON(context.Background(), srv.URL, &out))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://a/health", JoinURL("http://a/", "/health"))
	assert.Equal(t, "http://a/health", JoinURL("http://a", "health"))
}

func TestLogResponse_KeepsBody(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var out map[string]string
	require.NoError(t, GetJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, "ok", out["status"])
	assert.Contains(t, buf.String(), "http response")
}
