package version

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spider-rs/headless-browser/internal/domain/instance"
	"github.com/spider-rs/headless-browser/internal/infrastructure/monitoring"
	"github.com/spider-rs/headless-browser/internal/infrastructure/resilience"
	"github.com/spider-rs/headless-browser/internal/infrastructure/tracing"
	"go.uber.org/zap"
)

// Placeholder is served when no instance answers
var Placeholder = []byte(`{
   "Browser": "",
   "Protocol-Version": "",
   "User-Agent": "",
   "V8-Version": "",
   "WebKit-Version": "",
   "webSocketDebuggerUrl": ""
}`)

// Dialer opens upstream connections
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Settings configures the query path
type Settings struct {
	// Endpoint is the default /json/version URL
	Endpoint string
	// Hostname replaces the webSocketDebuggerUrl host when set
	Hostname string
	// Debug logs every served body
	Debug bool
	// Attempts bounds the retry loop
	Attempts      int
	RetryDelayMin time.Duration
	RetryDelayMax time.Duration
}

// DefaultSettings returns the retry loop defaults
func DefaultSettings() Settings {
	return Settings{
		Attempts:      10,
		RetryDelayMin: 10 * time.Millisecond,
		RetryDelayMax: 50 * time.Millisecond,
	}
}

// Query serves /json/version bodies for tracked instances
type Query struct {
	settings Settings
	registry *instance.Registry
	cache    *Cache
	client   *resty.Client
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewQuery creates a query path. Upstream connections come from dialer so
// a browser that is still starting is retried rather than failed.
func NewQuery(settings Settings, registry *instance.Registry, cache *Cache, dialer Dialer, logger *zap.Logger, metrics *monitoring.Metrics) *Query {
	def := DefaultSettings()
	if settings.Attempts <= 0 {
		settings.Attempts = def.Attempts
	}
	if settings.RetryDelayMax <= 0 {
		settings.RetryDelayMin, settings.RetryDelayMax = def.RetryDelayMin, def.RetryDelayMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// each fetch is a fresh connection from the connector
	transport := &http.Transport{
		DialContext:       dialer.DialContext,
		DisableKeepAlives: true,
	}

	client := resty.New().
		SetTransport(transport).
		SetHeader("Content-Type", "application/json").
		SetLogger(restyLogger{logger.Sugar()})

	return &Query{
		settings: settings,
		registry: registry,
		cache:    cache,
		client:   client,
		logger:   logger,
		metrics:  metrics,
	}
}

// Endpoint returns the default endpoint
func (q *Query) Endpoint() string {
	return q.settings.Endpoint
}

// Body returns the version body for endpoint (the default endpoint when
// empty). ok is false when the placeholder is returned.
func (q *Query) Body(ctx context.Context, endpoint string) ([]byte, bool) {
	if endpoint == "" {
		endpoint = q.settings.Endpoint
	}

	var (
		body         []byte
		ok           bool
		checkedEmpty bool
	)

	for attempt := 0; attempt < q.settings.Attempts && !ok && !q.registry.IsEmpty(); {
		// taken before the flag so a shutdown in between voids the store
		gen := q.cache.Generation()
		if q.registry.Cacheable() {
			body, ok = q.cache.GetOrFetchSince(ctx, endpoint, gen, func(ctx context.Context) ([]byte, bool) {
				return q.Fetch(ctx, endpoint)
			})
		} else {
			q.recordCache("bypass")
			body, ok = q.Fetch(ctx, endpoint)
		}
		if ok {
			break
		}

		if !checkedEmpty {
			checkedEmpty = true
			if q.registry.IsEmpty() {
				break
			}
		}
		attempt++

		if err := sleep(ctx, q.settings.RetryDelayMin, q.settings.RetryDelayMax); err != nil {
			break
		}
	}

	if !ok {
		body = Placeholder
	}

	if q.settings.Debug {
		q.logger.Info("json version", zap.ByteString("body", body), zap.Bool("ok", ok))
	}
	if q.metrics != nil {
		if ok {
			q.metrics.RecordVersion("ok")
		} else {
			q.metrics.RecordVersion("placeholder")
		}
	}

	return body, ok
}

// Fetch performs one uncached request. The health flag follows the
// outcome: true on any response, false when the request fails after a
// connection attempt, unchanged when no connection could be made.
func (q *Query) Fetch(ctx context.Context, endpoint string) ([]byte, bool) {
	headers := make(map[string]string, 2)
	tracing.InjectTraceContext(ctx, headers)

	resp, err := q.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(endpoint)
	if err != nil {
		if errors.Is(err, resilience.ErrUnreachable) || ctx.Err() != nil {
			q.logger.Debug("version endpoint unreachable", zap.String("endpoint", endpoint), zap.Error(err))
			return nil, false
		}
		q.registry.SetHealthy(false)
		q.logger.Warn("version request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, false
	}

	q.registry.SetHealthy(true)

	body := resp.Body()
	if len(body) == 0 {
		return nil, false
	}

	return RewriteHost(body, q.settings.Hostname), true
}

// Purge drops cached bodies
func (q *Query) Purge() {
	q.cache.Purge()
}

func (q *Query) recordCache(result string) {
	if q.metrics != nil {
		q.metrics.RecordCache(result)
	}
}

func sleep(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += rand.N(max - min + 1)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// restyLogger routes resty's internal messages through zap
type restyLogger struct {
	s *zap.SugaredLogger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.s.Errorf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.s.Warnf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.s.Debugf(format, v...) }
