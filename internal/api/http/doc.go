// Package http provides the REST surface of the game host.
//
// This package implements all HTTP endpoints using the Gin framework: saved
// game storage, static analysis, content hardening, playback of saved games
// and the generation proxy.
//
// Endpoints:
//   - Health: / and /health
//   - Storage: /api/game/storage/{save,list,stats,batch,archive,:id}
//   - Analysis: /api/game/analyze, /api/game/inject
//   - Games: /api/game/:id/play, /api/game/:id/export
//   - Generation: /api/game/generate, /api/game/models
//   - Host page logs: /api/logs
//
// Storage responses use the envelope of the storage service: success,
// data, gameId, count, successCount, failCount, message and error.
//
// Example Usage:
//
//	handlers := http.NewHandlers(store, "local", http.WithLogger(logger))
//	handlers.Register(router)
package http
