// Package store persists sheet documents.
//
// A Controller sits between the in-memory document and a Backend. Backends
// move opaque serialized bytes; the Controller owns serialization, timeouts,
// error classification and the persist-on-exit policy.
//
// # Backends
//
//   - FileBackend: one JSON file, replaced atomically (temp file, fsync,
//     rename, directory fsync). An interrupted save leaves the prior file
//     intact.
//   - SQLiteBackend: one row per saved revision, written in a transaction.
//     Loads return the newest revision after verifying its SHA-256 digest.
//   - MemoryBackend: process-local, for tests and throwaway sessions.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// # Errors
//
// Load reports ErrNotFound when nothing has been stored yet. Backend failures
// surface as *IOError (matching ErrIO); TimedOut is set when the call's
// deadline expired. Damaged payloads surface as sheet.ErrParse.
package store
