package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_FetchConfigs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/configs", r.URL.Path)
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"symbol":"BTC/USDT","strategy":"rsi","amountUsdt":100}]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, AuthToken: "token-1"})
	configs, err := c.FetchConfigs(context.Background())
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.EqualValues(t, 1, configs[0].ID)
	require.Equal(t, "BTC/USDT", configs[0].Symbol)
}

func TestClient_FetchStatusReturnsRawBody(t *testing.T) {
	payload := `{"5":{"is_running":true}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/status", r.URL.Path)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	raw, err := c.FetchStatus(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, payload, string(raw))
}

func TestClient_StartSendsConfigID(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/bot/start", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	id := int64(7)
	require.NoError(t, c.Start(context.Background(), Command{ConfigID: &id}))
	require.EqualValues(t, 7, got["config_id"])
	_, hasSymbol := got["symbol"]
	require.False(t, hasSymbol)
}

func TestClient_StopSendsSymbolForLegacy(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/bot/stop", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	require.NoError(t, c.Stop(context.Background(), Command{Symbol: "ETH/USDT"}))
	require.Equal(t, "ETH/USDT", got["symbol"])
}

func TestClient_DeleteConfigPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/configs/12", r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	require.NoError(t, c.DeleteConfig(context.Background(), 12))
}

func TestClient_CommandNeedsTarget(t *testing.T) {
	c := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:0"})
	err := c.Start(context.Background(), Command{})
	require.Error(t, err)
}

func TestClient_CommandsAreNotRetried(t *testing.T) {
	var gets, posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&posts, 1)
		} else {
			atomic.AddInt32(&gets, 1)
		}
		// drop the connection so the transport reports an error
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, RetryCount: 2})

	_, err := c.FetchConfigs(context.Background())
	require.Error(t, err)
	require.GreaterOrEqual(t, atomic.LoadInt32(&gets), int32(3))

	id := int64(1)
	err = c.Start(context.Background(), Command{ConfigID: &id})
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&posts))
}

func TestRetryAfterDelay(t *testing.T) {
	wait, ok := retryAfterDelay("3")
	require.True(t, ok)
	require.Equal(t, 3*time.Second, wait)

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	wait, ok = retryAfterDelay(future)
	require.True(t, ok)
	require.Greater(t, wait, time.Duration(0))

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	wait, ok = retryAfterDelay(past)
	require.True(t, ok)
	require.Equal(t, time.Duration(0), wait)

	_, ok = retryAfterDelay("soon")
	require.False(t, ok)
	_, ok = retryAfterDelay("")
	require.False(t, ok)
}

func TestClient_ErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL})
	_, err := c.FetchConfigs(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
