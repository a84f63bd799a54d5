package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnreachable is returned once the connector gives up on an address.
	ErrUnreachable = errors.New("upstream unreachable")
)

// State represents a connector state
type State int

const (
	StateConnecting State = iota
	StateBackoffShort
	StateBackoffLong
	StateFailed
	StateConnected
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateBackoffShort:
		return "backoff-short"
	case StateBackoffLong:
		return "backoff-long"
	case StateFailed:
		return "failed"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow the state
func (s State) Terminal() bool {
	return s == StateFailed || s == StateConnected
}

// Outcome classifies a single dial attempt
type Outcome int

const (
	OutcomeConnected Outcome = iota
	OutcomeRefused
	OutcomeTimeout
	OutcomeError
)

// String returns the metric label of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeRefused:
		return "refused"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// Settings configures the connector behavior
type Settings struct {
	// AttemptTimeout bounds a single dial (browser restart timeout is 15s)
	AttemptTimeout time.Duration
	// MaxAttempts is the hard ceiling regardless of error kind
	MaxAttempts int
	// RefusedFailFast is the attempt count after which refusals give up
	// when Idle reports nothing to wait for
	RefusedFailFast int
	// ShortDelayMin/Max bound the delay after a refused connection
	ShortDelayMin time.Duration
	ShortDelayMax time.Duration
	// LongDelayMin/Max bound the delay after any other failure
	LongDelayMin time.Duration
	LongDelayMax time.Duration
	// Idle reports that no browser instance is tracked
	Idle func() bool
	// OnAttempt is called after every dial attempt
	OnAttempt func(address string, outcome Outcome)
	// OnStateChange is called whenever the state changes
	OnStateChange func(address string, from State, to State)
}

// DefaultSettings returns the browser startup tuned settings
func DefaultSettings() Settings {
	return Settings{
		AttemptTimeout:  15 * time.Second,
		MaxAttempts:     20,
		RefusedFailFast: 10,
		ShortDelayMin:   80 * time.Millisecond,
		ShortDelayMax:   150 * time.Millisecond,
		LongDelayMin:    150 * time.Millisecond,
		LongDelayMax:    250 * time.Millisecond,
	}
}

// Connector dials TCP addresses, retrying while the target comes up
type Connector struct {
	settings Settings
	logger   *zap.Logger
	dialer   net.Dialer
}

// NewConnector creates a connector, filling zero settings with defaults
func NewConnector(settings Settings, logger *zap.Logger) *Connector {
	def := DefaultSettings()
	if settings.AttemptTimeout == 0 {
		settings.AttemptTimeout = def.AttemptTimeout
	}
	if settings.MaxAttempts == 0 {
		settings.MaxAttempts = def.MaxAttempts
	}
	if settings.RefusedFailFast == 0 {
		settings.RefusedFailFast = def.RefusedFailFast
	}
	if settings.ShortDelayMax == 0 {
		settings.ShortDelayMin, settings.ShortDelayMax = def.ShortDelayMin, def.ShortDelayMax
	}
	if settings.LongDelayMax == 0 {
		settings.LongDelayMin, settings.LongDelayMax = def.LongDelayMin, def.LongDelayMax
	}
	if settings.Idle == nil {
		settings.Idle = func() bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Connector{
		settings: settings,
		logger:   logger,
	}
}

// Settings returns the effective settings
func (c *Connector) Settings() Settings {
	return c.settings
}

// dial is one attempt of the state machine
type dial struct {
	c        *Connector
	address  string
	state    State
	attempts int
}

// Dial connects to address, backing off between failed attempts. It
// returns ErrUnreachable once the attempt budget is spent or, for refused
// connections, once Idle reports there is nothing to wait for.
func (c *Connector) Dial(ctx context.Context, address string) (net.Conn, error) {
	d := &dial{c: c, address: address, state: StateConnecting}

	for {
		switch d.state {
		case StateConnecting:
			conn, err := d.attempt(ctx)
			if err == nil {
				d.transition(StateConnected)
				return conn, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				d.transition(StateFailed)
				return nil, ctxErr
			}
			d.transition(d.next(err))

		case StateBackoffShort:
			if err := d.sleep(ctx, c.settings.ShortDelayMin, c.settings.ShortDelayMax); err != nil {
				d.transition(StateFailed)
				return nil, err
			}
			d.transition(StateConnecting)

		case StateBackoffLong:
			if err := d.sleep(ctx, c.settings.LongDelayMin, c.settings.LongDelayMax); err != nil {
				d.transition(StateFailed)
				return nil, err
			}
			d.transition(StateConnecting)

		case StateFailed:
			return nil, ErrUnreachable
		}
	}
}

// DialContext matches the net.Dialer signature so the connector can back
// an http.Transport.
func (c *Connector) DialContext(ctx context.Context, _ string, address string) (net.Conn, error) {
	return c.Dial(ctx, address)
}

func (d *dial) attempt(ctx context.Context) (net.Conn, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.c.settings.AttemptTimeout)
	defer cancel()

	conn, err := d.c.dialer.DialContext(attemptCtx, "tcp", d.address)
	d.attempts++
	d.report(Classify(err))
	return conn, err
}

// next picks the state after a failed attempt
func (d *dial) next(err error) State {
	s := d.c.settings
	outcome := Classify(err)

	switch outcome {
	case OutcomeRefused:
		if d.attempts >= s.RefusedFailFast && s.Idle() {
			d.c.logger.Warn("connection refused and no instance tracked",
				zap.String("address", d.address),
				zap.Int("attempt", d.attempts),
				zap.Error(err),
			)
			return StateFailed
		}
	case OutcomeTimeout:
		d.c.logger.Error("connection attempt timed out",
			zap.String("address", d.address),
			zap.Int("attempt", d.attempts),
			zap.Int("max_attempts", s.MaxAttempts),
		)
	default:
		d.c.logger.Warn("failed to connect",
			zap.String("address", d.address),
			zap.Int("attempt", d.attempts),
			zap.Int("max_attempts", s.MaxAttempts),
			zap.Error(err),
		)
	}

	if d.attempts >= s.MaxAttempts {
		return StateFailed
	}
	if outcome == OutcomeRefused {
		return StateBackoffShort
	}
	return StateBackoffLong
}

func (d *dial) sleep(ctx context.Context, min, max time.Duration) error {
	timer := time.NewTimer(jitter(min, max))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *dial) transition(to State) {
	if d.state == to {
		return
	}
	from := d.state
	d.state = to
	if d.c.settings.OnStateChange != nil {
		d.c.settings.OnStateChange(d.address, from, to)
	}
}

func (d *dial) report(outcome Outcome) {
	if d.c.settings.OnAttempt != nil {
		d.c.settings.OnAttempt(d.address, outcome)
	}
}

// Classify maps a dial error to an attempt outcome
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeConnected
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeRefused
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeError
}

// jitter returns a uniformly random duration in [min, max]
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}
