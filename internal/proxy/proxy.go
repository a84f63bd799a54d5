package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/spider-rs/headless-browser/internal/infrastructure/monitoring"
	"github.com/spider-rs/headless-browser/internal/infrastructure/tracing"
	"github.com/spider-rs/headless-browser/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// DefaultBufferSize is the read buffer per direction
const DefaultBufferSize = 128 * 1024

// Dialer opens connections to the browser
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config describes one listener and its target
type Config struct {
	ListenAddr     string
	TargetAddr     string
	Rule           Rule
	BufferSize     int
	MaxConnections int
}

// Proxy relays TCP connections to the browser, rewriting the port token
// in browser to client traffic
type Proxy struct {
	cfg     Config
	dialer  Dialer
	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	buffers sync.Pool

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	sessions sync.Map
	wg       sync.WaitGroup
}

// Option configures a Proxy
type Option func(*Proxy)

// WithMetrics records sessions and relayed bytes
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Proxy) {
		p.metrics = m
	}
}

// WithTracer emits one span per session
func WithTracer(t *tracing.Tracer) Option {
	return func(p *Proxy) {
		p.tracer = t
	}
}

// New creates a proxy. Connections to the target come from dialer.
func New(cfg Config, dialer Dialer, logger *zap.Logger, opts ...Option) *Proxy {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Proxy{
		cfg:    cfg,
		dialer: dialer,
		logger: logger,
	}
	p.buffers.New = func() any {
		b := make([]byte, cfg.BufferSize)
		return &b
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Addr returns the listening address once serving
func (p *Proxy) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// ListenAndServe listens on the configured address and serves until ctx
// ends or Close is called
func (p *Proxy) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return p.Serve(ctx, ln)
}

// Serve accepts connections on ln. Session failures never stop the loop.
// It returns nil once ctx ends or Close is called.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	if p.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, p.cfg.MaxConnections)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		ln.Close()
		return nil
	}
	p.listener = ln
	p.mu.Unlock()

	p.logger.Info("proxy listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("target", p.cfg.TargetAddr),
		zap.String("rewrite_from", p.cfg.Rule.From()),
		zap.String("rewrite_to", p.cfg.Rule.To()),
	)

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			p.logger.Warn("proxy accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			time.Sleep(delay)
			continue
		}
		delay = 0

		// Add happens under mu so it cannot race the Wait in Close
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			conn.Close()
			return nil
		}
		p.wg.Add(1)
		p.mu.Unlock()

		go func() {
			defer p.wg.Done()
			p.handle(ctx, conn)
		}()
	}
}

// Close stops accepting, drops open sessions and waits for their goroutines
func (p *Proxy) Close() error {
	p.mu.Lock()
	ln := p.listener
	p.closed = true
	p.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}

	p.sessions.Range(func(_, v any) bool {
		v.(*session).close()
		return true
	})
	p.wg.Wait()
	return err
}

// Sessions returns the number of open sessions
func (p *Proxy) Sessions() int {
	n := 0
	p.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// session pairs one inbound and one outbound connection
type session struct {
	id         id.SessionID
	client     net.Conn
	browser    net.Conn
	started    time.Time
	once       sync.Once
	upstream   int64
	downstream int64
}

func (s *session) close() {
	s.once.Do(func() {
		s.client.Close()
		if s.browser != nil {
			s.browser.Close()
		}
	})
}

func (p *Proxy) handle(ctx context.Context, client net.Conn) {
	sid := id.NewSessionID()
	log := p.logger.With(
		zap.String("session_id", sid.String()),
		zap.String("remote", client.RemoteAddr().String()),
	)

	if p.metrics != nil {
		p.metrics.SessionOpened()
	}

	var span *tracing.Span
	if p.tracer != nil {
		span, ctx = p.tracer.StartSpan(ctx, "proxy.session")
		span.SetTag("session_id", sid.String())
		defer func() {
			span.Finish()
			p.tracer.Submit(span)
		}()
	}

	browser, err := p.dialer.DialContext(ctx, "tcp", p.cfg.TargetAddr)
	if err != nil {
		log.Warn("proxy dial failed", zap.String("target", p.cfg.TargetAddr), zap.Error(err))
		client.Close()
		if p.metrics != nil {
			p.metrics.SessionClosed("dial_failed")
		}
		if span != nil {
			span.SetError(err)
		}
		return
	}

	s := &session{
		id:      sid,
		client:  client,
		browser: browser,
		started: time.Now(),
	}
	p.sessions.Store(sid, s)
	defer p.sessions.Delete(sid)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		s.close()
	}

	log.Debug("proxy session opened")

	var g errgroup.Group
	g.Go(func() error {
		defer s.close()
		return p.forward(s, browser, client)
	})
	g.Go(func() error {
		defer s.close()
		return p.rewrite(s, client, browser)
	})
	err = g.Wait()

	if p.metrics != nil {
		p.metrics.SessionClosed("closed")
	}
	fields := []zap.Field{
		zap.Int64("bytes_upstream", s.upstream),
		zap.Int64("bytes_downstream", s.downstream),
		zap.Duration("duration", time.Since(s.started)),
	}
	if err != nil {
		log.Debug("proxy session ended with error", append(fields, zap.Error(err))...)
		return
	}
	log.Debug("proxy session closed", fields...)
}

// forward copies client bytes to the browser unmodified
func (p *Proxy) forward(s *session, dst, src net.Conn) error {
	bp := p.buffers.Get().(*[]byte)
	defer p.buffers.Put(bp)
	buf := *bp

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return quiet(werr)
			}
			s.upstream += int64(n)
			if p.metrics != nil {
				p.metrics.AddProxyBytes("upstream", n)
			}
		}
		if err != nil {
			return quiet(err)
		}
	}
}

// rewrite copies browser bytes to the client, replacing the port token
func (p *Proxy) rewrite(s *session, dst, src net.Conn) error {
	bp := p.buffers.Get().(*[]byte)
	defer p.buffers.Put(bp)
	buf := *bp

	rw := NewRewriter(p.cfg.Rule)
	var reported uint64

	emit := func(out []byte) error {
		if len(out) == 0 {
			return nil
		}
		if _, err := dst.Write(out); err != nil {
			return err
		}
		s.downstream += int64(len(out))
		if p.metrics != nil {
			p.metrics.AddProxyBytes("downstream", len(out))
			if c := rw.Count(); c > reported {
				p.metrics.AddRewrites(int(c - reported))
				reported = c
			}
		}
		return nil
	}

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := emit(rw.Feed(buf[:n])); werr != nil {
				return quiet(werr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if werr := emit(rw.Flush()); werr != nil {
					return quiet(werr)
				}
			}
			return quiet(err)
		}
	}
}

// quiet maps the errors of an ordinary teardown to nil
func quiet(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
