/*
Package resilience provides the circuit breaker that guards calls to the
storage and generation collaborators.

A breaker is closed while calls succeed, opens once ReadyToTrip accepts the
failure counts, and after Timeout lets MaxRequests probe calls through in
the half-open state:

	Closed --[trip]--> Open --[timeout]--> Half-Open --[probes succeed]--> Closed
	                     ^                     |
	                     +-----[probe fails]---+

Calls rejected while open fail fast with ErrCircuitOpen, so an unreachable
collaborator surfaces as a transient notice instead of a slow request.

	b := resilience.New("remote-storage", resilience.Settings{Timeout: 30 * time.Second})
	resp, err := resilience.Call(b, func() (*resty.Response, error) {
		return req.Get("/api/game/storage/list")
	})
*/
package resilience
