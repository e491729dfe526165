// Package generation is the client for the game generation service.
//
// The host never generates games itself. Generate forwards a request to
// POST /api/game/generate and turns the returned game payload into a
// types.Bundle carrying agent attribution. The service sends gameData
// either as the markup string or as {html, gameData{title, type, ...}};
// both are accepted.
package generation
