package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	client := New(cfg)
	t.Cleanup(client.Close)
	return client
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func closeResponseBody(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		t.Logf("failed to close response body: %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, nil)
	assert.Equal(t, DefaultTimeout, client.defaultTimeout)
	assert.Equal(t, defaultUserAgent, client.userAgent)
}

func TestNew_DoesNotMutateConfig(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	newTestClient(t, cfg)
	assert.Zero(t, cfg.DefaultTimeout)
	assert.Empty(t, cfg.UserAgent)
}

func TestGet_InjectsUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, "ok")
	})

	client := newTestClient(t, &Config{UserAgent: "partsimg-test"})
	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	defer closeResponseBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "partsimg-test", gotUA.Load())
}

func TestDo_KeepsExplicitUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
	})

	client := newTestClient(t, nil)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom")

	resp, err := client.Do(t.Context(), req)
	require.NoError(t, err)
	closeResponseBody(t, resp)
	assert.Equal(t, "custom", gotUA.Load())
}

func TestDo_DefaultTimeoutApplies(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client := newTestClient(t, &Config{DefaultTimeout: 50 * time.Millisecond})
	start := time.Now()
	resp, err := client.Get(context.Background(), server.URL)
	closeResponseBody(t, resp)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDo_NilRequest(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, nil)
	_, err := client.Do(t.Context(), nil)
	assert.Error(t, err)
}

func TestHooks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := newTestClient(t, nil)
	var before, after atomic.Int32
	var status atomic.Int32
	client.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		after.Add(1)
		if err == nil {
			status.Store(int32(resp.StatusCode))
		}
	})

	resp, err := client.Get(t.Context(), server.URL)
	require.NoError(t, err)
	closeResponseBody(t, resp)

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, int32(http.StatusNotFound), status.Load())
}
