// Package ws drives games for a host page over a WebSocket.
//
// Each connection owns one lifecycle controller. The page loads games,
// relays messages produced by its renderer back into the running context
// and reports fullscreen changes; the server pushes snapshots, notices and
// fullscreen requests as they happen.
//
// Message Types (Client → Server):
//   - load: play a saved game (gameId) or inline markup (payload.html)
//   - unload, reload: empty the controller or restart the current game
//   - relay: forward payload into the context named by contextId
//   - fullscreen: toggle fullscreen
//   - fullscreen-changed: report the platform state (active)
//   - export: fetch the original markup as an artifact
//   - snapshot, ping
//
// Message Types (Server → Client):
//   - system: connection greeting carrying the session id
//   - snapshot: lifecycle state, score, findings and context id
//   - notice: sanitized alert (info) and confirm (warning) text, load errors
//   - fullscreen-request, fullscreen-exit
//   - artifact, pong, error
//
// Example Usage:
//
//	handler := ws.NewHandler(host, store, ws.WithAllowedOrigins(origins...))
//	router.GET("/stream", handler.HandleConnection)
package ws
