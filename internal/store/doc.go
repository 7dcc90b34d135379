// Package store provides the SQLite-backed run ledger.
//
// Every census, hash, reconcile and integrity run is recorded with its
// outcome and a JSON summary. Hash runs also keep one row per file digest so
// successive runs over the same device can be compared for drift; reconcile
// and integrity runs keep their non-matching findings.
//
// # Ordering
//
// Runs are ordered by seq, an autoincrement insertion counter, never by
// timestamps. Two runs started within the same clock tick still list in the
// order they were recorded.
//
// # Connection settings
//
// The ledger runs in WAL journal mode with synchronous=NORMAL, waits up to
// five seconds on a locked database, and enforces foreign keys so digests
// and findings are removed together with their run.
package store
