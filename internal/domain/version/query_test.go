package version

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spider-rs/headless-browser/internal/domain/instance"
	"github.com/spider-rs/headless-browser/internal/infrastructure/monitoring"
	"github.com/spider-rs/headless-browser/internal/infrastructure/resilience"
	"github.com/spider-rs/headless-browser/internal/infrastructure/tracing"
	"github.com/spider-rs/headless-browser/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDialer struct {
	calls atomic.Int32
	d     net.Dialer
}

func (c *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	c.calls.Add(1)
	return c.d.DialContext(ctx, network, address)
}

// versionServer serves body on /json/version and counts requests
func versionServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func fastSettings(endpoint string) Settings {
	return Settings{
		Endpoint:      endpoint,
		Attempts:      3,
		RetryDelayMin: time.Millisecond,
		RetryDelayMax: 2 * time.Millisecond,
	}
}

func TestBodyWithEmptyRegistryNeverDials(t *testing.T) {
	registry := instance.NewRegistry()
	dialer := &countingDialer{}
	metrics := monitoring.NewMetrics()

	q := NewQuery(fastSettings("http://127.0.0.1:9/json/version"), registry, NewCache(time.Minute, nil), dialer, nil, metrics)

	body, ok := q.Body(context.Background(), "")
	assert.False(t, ok)
	assert.Equal(t, Placeholder, body)
	assert.Equal(t, int32(0), dialer.calls.Load())
	assert.True(t, registry.Healthy())
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.VersionRequests.WithLabelValues("placeholder")))
}

func TestBodyFetchesAndCaches(t *testing.T) {
	srv, hits := versionServer(t, chromeVersion)

	registry := instance.NewRegistry()
	registry.Insert(1)
	registry.SetHealthy(false)

	q := NewQuery(fastSettings(srv.URL+"/json/version"), registry, NewCache(time.Minute, nil), &countingDialer{}, nil, nil)

	var (
		wg     sync.WaitGroup
		bodies [2][]byte
	)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, ok := q.Body(context.Background(), "")
			assert.True(t, ok)
			bodies[i] = body
		}(i)
	}
	wg.Wait()

	assert.Equal(t, chromeVersion, string(bodies[0]))
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, registry.Healthy())
}

func TestBodyBypassesCacheWhenNotCacheable(t *testing.T) {
	srv, hits := versionServer(t, chromeVersion)

	registry := instance.NewRegistry()
	registry.Insert(1)
	registry.SetCacheable(false)
	cache := NewCache(time.Minute, nil)

	q := NewQuery(fastSettings(srv.URL+"/json/version"), registry, cache, &countingDialer{}, nil, nil)

	for i := 0; i < 2; i++ {
		_, ok := q.Body(context.Background(), "")
		require.True(t, ok)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestBodyRewritesHostname(t *testing.T) {
	srv, _ := versionServer(t, chromeVersion)

	registry := instance.NewRegistry()
	registry.Insert(1)

	settings := fastSettings(srv.URL + "/json/version")
	settings.Hostname = "chrome.internal"
	q := NewQuery(settings, registry, NewCache(time.Minute, nil), &countingDialer{}, nil, nil)

	body, ok := q.Body(context.Background(), "")
	require.True(t, ok)
	assert.Contains(t, string(body), "ws://chrome.internal:9222/devtools/browser/1f2e")
}

func TestBodyRetriesAfterEmptyResponse(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			return
		}
		fmt.Fprint(w, chromeVersion)
	}))
	defer srv.Close()

	registry := instance.NewRegistry()
	registry.Insert(1)

	q := NewQuery(fastSettings(srv.URL+"/json/version"), registry, NewCache(time.Minute, nil), &countingDialer{}, nil, nil)

	body, ok := q.Body(context.Background(), "")
	require.True(t, ok)
	assert.Equal(t, chromeVersion, string(body))
	assert.Equal(t, int32(2), hits.Load())
}

func TestBodyUnreachableKeepsHealth(t *testing.T) {
	addr := testutil.ClosedAddr(t)

	registry := instance.NewRegistry()
	registry.Insert(1)

	connector := resilience.NewConnector(resilience.Settings{
		AttemptTimeout: time.Second,
		MaxAttempts:    1,
		ShortDelayMin:  time.Millisecond,
		ShortDelayMax:  time.Millisecond,
	}, nil)

	q := NewQuery(fastSettings("http://"+addr+"/json/version"), registry, NewCache(time.Minute, nil), connector, nil, nil)

	body, ok := q.Body(context.Background(), "")
	assert.False(t, ok)
	assert.Equal(t, Placeholder, body)
	assert.True(t, registry.Healthy())
}

func TestFetchMarksUnhealthyWhenRequestFails(t *testing.T) {
	// accepts connections and hangs up without answering
	ln := testutil.Listen(t)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	registry := instance.NewRegistry()
	registry.Insert(1)

	q := NewQuery(fastSettings(""), registry, NewCache(time.Minute, nil), &countingDialer{}, nil, nil)

	body, ok := q.Fetch(context.Background(), "http://"+ln.Addr().String()+"/json/version")
	assert.False(t, ok)
	assert.Nil(t, body)
	assert.False(t, registry.Healthy())
}

func TestBodyStopsWhenRegistryEmptiesMidLoop(t *testing.T) {
	var hits atomic.Int32
	registry := instance.NewRegistry()
	registry.Insert(1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		registry.Drain()
	}))
	defer srv.Close()

	settings := fastSettings(srv.URL + "/json/version")
	settings.Attempts = 10
	q := NewQuery(settings, registry, NewCache(time.Minute, nil), &countingDialer{}, nil, nil)

	body, ok := q.Body(context.Background(), "")
	assert.False(t, ok)
	assert.Equal(t, Placeholder, body)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchPropagatesTraceContext(t *testing.T) {
	var (
		mu      sync.Mutex
		traceID string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		traceID = r.Header.Get(tracing.TraceHeader)
		mu.Unlock()
		fmt.Fprint(w, `{"Browser":"HeadlessChrome"}`)
	}))
	defer srv.Close()

	registry := instance.NewRegistry()
	registry.Insert(1)
	q := NewQuery(fastSettings(srv.URL+"/json/version"), registry, NewCache(time.Minute, nil), &countingDialer{}, nil, nil)

	ctx := tracing.WithTraceID(context.Background(), "req_upstream")
	_, ok := q.Body(ctx, "")
	require.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "req_upstream", traceID)
}
