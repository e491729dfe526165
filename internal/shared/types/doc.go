// Package types provides the shared data model of the game host.
//
// Core Types:
//   - Bundle: immutable embeddable content plus metadata
//   - HardenedDocument: markup after shim injection
//   - Finding, Severity: static analysis results
//   - ChannelMessage: closed union of sandbox messages
//   - Envelope, ContextHandle: context-bound message transport
//   - Score, ScoreDelta: score accumulation with partial updates
//   - LifecycleState: empty, loading, ready, error
//
// Storage Types:
//   - Summary, StorageStats, BatchResult
//
// Example Usage:
//
//	b := types.NewBundle(html, types.Metadata{Title: "Snake"})
//	doc := inject.Inject(b.Markup())
package types
