// Package history provides a SQLite-backed journal of compile attempts.
//
// Every compiler invocation made by the engine is appended as one row:
// preview compiles, artifact compiles, first compilations and their
// rollbacks. The journal is append-only and ordered by a logical sequence
// number, never by wall-clock time.
//
// # Database Configuration
//
//   - WAL mode: readers (whylson history) do not block the session writer
//   - synchronous=NORMAL
//   - busy_timeout=5000
//
// The journal is optional. The registry file stays the source of truth for
// what is registered; losing history.db loses nothing else.
package history
