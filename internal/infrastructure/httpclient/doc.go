// Package httpclient builds the HTTP clients used to reach the storage and
// generation collaborators: resty on a retryablehttp transport, a token
// bucket limiter and a circuit breaker per collaborator.
package httpclient
