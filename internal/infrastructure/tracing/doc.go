/*
Package tracing provides lightweight request tracing for the control surface
and the proxy.

Spans carry a trace ID (propagated through the X-Trace-ID header, generated
when absent) and are logged asynchronously through a buffered collector of
1000 spans. Spans are dropped rather than blocking when the buffer is full.

# Usage

	tracer := tracing.New("headless-browser", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "proxy.session")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	span.SetTag("session_id", sid.String())
*/
package tracing
