/*
Package monitoring provides Prometheus metrics for the fleet backend.

# Overview

Collectors cover HTTP requests, browser launches per engine, fingerprint
injection failures, proxy health verdicts and workflow executions. All
recording methods accept a nil receiver.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	timer := monitoring.NewTimer(metrics, "rod")
	browser, err := launcher.Launch(ctx, opts)
	timer.Stop(err)
*/
package monitoring
