/*
Package storage defines the persistence collaborator of the game host.

The host core never persists anything itself. Saved bundles live behind the
Store interface, which has three implementations:

  - local: a directory of <id>_<title>.html files with JSON sidecars, capped
    at MaxSaved bundles
  - remote: the /api/game/storage HTTP service
  - objectstore: an S3 compatible bucket

Persistence failures are reported to the caller and never change the state
of a running game.
*/
package storage
