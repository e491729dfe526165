/*
Package inject hardens untrusted game markup before it is executed.

Inject is a pure function: it never parses the document into a tree, it
only splices a fixed enhancement block into the raw text. The block carries:

  - viewport and UTF-8 charset meta tags
  - the interception shim that turns alert/confirm into channel messages
  - a content-ready script that fixes iOS body spacing and fits canvases
  - a minimal style reset scoped to the game container
  - a touch feature-detection guard, only when the markup has none

Insertion order is: before the first closing head tag, else a synthesized
head ahead of the first body open tag, else prepended to the text.
*/
package inject
