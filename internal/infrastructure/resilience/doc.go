/*
Package resilience provides the backoff connector used to reach a browser
that may still be starting, restarting or gone.

# Overview

A browser's debugging port refuses connections for a short while after a
spawn and while it restarts. The connector keeps dialing through that
window and gives up early when nothing is tracked that could come up.

# States

	Connecting --[refused]--> BackoffShort --[80-150ms]--> Connecting
	Connecting --[other]----> BackoffLong  --[150-250ms]-> Connecting
	Connecting --[ok]-------> Connected
	Connecting --[refused, attempts >= 10, idle]--> Failed
	Connecting --[attempts >= 20]--> Failed

Every attempt is bounded by a 15s timeout. Cancelling the context stops the
loop and returns the context error.

# Usage

	connector := resilience.NewConnector(resilience.Settings{
		Idle: registry.IsEmpty,
		OnAttempt: func(addr string, o resilience.Outcome) {
			metrics.RecordConnectAttempt(o.String())
		},
	}, logger)

	conn, err := connector.Dial(ctx, "127.0.0.1:9222")
	if errors.Is(err, resilience.ErrUnreachable) {
		// no browser to talk to
	}
*/
package resilience
