/*
Package bridge mediates the channel between a sandboxed game and the host.

Everything arriving on the channel is untrusted data. The bridge decodes
it against a closed set of message shapes, drops anything else, and routes
what is left:

	game-alert                     -> Notifier.Info
	game-confirm                   -> Notifier.Warn
	game-status / score-update     -> ScoreSink.ApplyScore

Each armed bridge is bound to one context id. Envelopes tagged with any
other id are dropped before decoding so a torn-down context can never
affect the current score.
*/
package bridge
