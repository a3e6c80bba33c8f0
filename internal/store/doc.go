// Package store persists murmur state in SQLite.
//
// The database holds monitor tasks with their watermarks, the seen-content
// table backing the dedup index, reply records with an append-only event
// trail, and per-account rate limiter windows. All timestamps are written in
// a fixed-width UTC layout so range queries can compare them as strings.
//
// Writes retry briefly when SQLite reports the database as busy. Multi-row
// changes such as a reply transition plus its audit event share a single
// transaction.
package store
