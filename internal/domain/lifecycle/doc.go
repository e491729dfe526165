/*
Package lifecycle owns the state of one embedded game.

A Controller moves through empty, loading, ready and error:

	empty   --Load(bundle)-->   loading
	loading --context ready-->  ready
	loading --context failed--> error
	any     --Load/Reload-->    loading
	any     --Load(nil)-->      empty

Every Load and Reload opens a fresh execution context with a new id. Ready
and failure signals, bridge score updates and relayed messages all carry
that id and are ignored once it is no longer current, so the most recent
Load or Reload always wins.

State is guarded by a single mutex. Callbacks the controller makes while
holding it (Notifier, Observer) must not call back into the controller.
*/
package lifecycle
