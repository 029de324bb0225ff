/*
Package tracing provides lightweight request and execution tracing.

Spans are buffered on a channel and written to the zap logger by a single
collector goroutine. The trace id travels in the X-Trace-ID header and in
the request context, so an HTTP request and the executions it spawns
share one id in the logs.

	tracer := tracing.New(logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Trace(ctx, "execution", func(ctx context.Context) error {
		return run(ctx)
	}, zap.Int("execution_id", 7))
*/
package tracing
