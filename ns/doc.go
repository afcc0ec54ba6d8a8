// Package ns implements a netsoul presence/messaging protocol server.
//
// Clients connect over a persistent newline-delimited text socket,
// authenticate through a two-phase state machine, announce a liveness
// state (actif, away, idle, ...), message each other, and subscribe to
// other users' state transitions.
//
// The primary lifecycle is:
//   - build a command Registry with BuildRegistry
//   - construct a Reactor with NewReactor
//   - Run the reactor (blocking) until Stop is called
//
// A single loop goroutine owns every Session, the follower registry and
// command dispatch. Per-connection reader goroutines only shovel raw
// bytes into the loop's event channel; they never touch shared state.
// Command handlers therefore run free of locks: one state change may
// append notification lines to an arbitrary number of other sessions'
// output queues without synchronization.
//
// Credential verification and account lookups are delegated to a
// Directory implementation (see package account for the SQL-backed
// ones). Presence transitions are additionally pushed to a StateSink,
// with a Prometheus implementation in metrics.go.
package ns
