/*
Package sandbox executes hardened game documents in isolated goja runtimes.

# Overview

Each execution context gets a fresh JavaScript VM whose global scope looks
enough like a browser window for generated mini-games to initialize:

  - window, self, parent and top, with parent.postMessage as the only way out
  - a document backed by the parsed HTML tree (goquery), with element
    proxies for querySelector, getElementById, body, style and classList
  - navigator.userAgent, in-memory localStorage, console capture
  - timers and animation frames that accept callbacks but never fire them

Node.js style globals (require, process, module, exports) are removed.

# Loading

Host.Open parses the document, runs every inline classic script in document
order, then dispatches DOMContentLoaded and load. External scripts and
non-JavaScript script types are skipped. Uncaught exceptions are recorded
and, like in a browser, do not stop the remaining scripts unless
FailOnScriptError is set. A timeout, cancellation or panic fails the load.

Messages posted to the parent are encoded as JSON and delivered on the
context's channel as Envelopes tagged with the context id.

# Usage Example

	host, err := sandbox.NewHost(sandbox.DefaultConfig())
	if err != nil {
		return err
	}
	handle, err := host.Open(ctx, "ctx_01", doc, types.ContextEvents{
		Ready:   func() { ... },
		Failure: func(err error) { ... },
	})
	defer handle.Close()

	for env := range handle.Messages() {
		...
	}
*/
package sandbox
