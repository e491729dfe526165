// Package remote implements storage.Store against the game storage HTTP
// service mounted at /api/game/storage. Calls go through an
// httpclient.Client, so an unreachable service trips the breaker and fails
// fast with storage.ErrUnavailable.
package remote
