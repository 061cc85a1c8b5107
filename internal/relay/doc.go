// Package relay implements the protocol core: per-connection session state,
// the subscription registry and filter matcher, live fan-out, and the
// expiration sweeper loop.
//
// ARCHITECTURE:
//
// Each connection runs as an independent pair of transport pumps (package
// server). The Store, the subscription Registry, and the metrics are shared
// state reached from all of them; every shared structure is explicitly
// constructed and injected, never a package-level singleton, so tests run
// against isolated instances.
//
// Ordering guarantee: a subscriber receives the full backlog for its
// filters before any live event accepted after the backlog query ran. A
// newly registered subscription starts out pending; fan-out buffers into
// pending subscriptions, and the buffer is flushed (minus backlog
// duplicates) after the end-of-stored-results marker.
package relay
