/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the game
host, tracking HTTP requests, lifecycle transitions, bridge traffic, sandbox
executions and collaborator calls. Every collector lives on a private
registry owned by Metrics.

# Features

- HTTP request metrics (latency, throughput, size)
- Lifecycle metrics (transitions, bundles loaded, open contexts)
- Heuristic findings by rule and severity
- Bridge messages by kind and outcome
- Sandbox execution duration and script errors
- Storage and generation call metrics
- WebSocket connection metrics

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "storage", "save")
	_, err := store.Save(ctx, bundle)
	timer.StopErr(err, "save_failed")
*/
package monitoring
