// Package main is the entry point for the gamehost server.
//
// gamehost stores small self-contained HTML games, hardens them before
// they run, executes them in isolated script sandboxes and relays what the
// games report (alerts, confirms, scores) to the host page.
//
// Architecture:
//
//	Host page → REST API  → Storage (local, remote, s3)
//	          → WebSocket → Lifecycle → Sandbox
//	                                  → Bridge
//	          → Generation service (optional)
//
// Configuration:
//   - Environment variables prefixed GAMEHOST_ (and a .env file)
//   - A YAML or TOML file named by GAMEHOST_CONFIG or -config
//   - CLI flags override both
//
// Usage:
//
//	./server -config gamehost.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev -port 8080
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
