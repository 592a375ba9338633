package storage

// Package storage owns meeting records.
//
// It answers the queries the scheduling core needs:
//   - CRUD on meetings
//   - Range queries ordered by start time
//   - Half-open overlap queries ([start, end) semantics)
//
// Drivers: sqlite (persistent) and memory (tests, ephemeral runs).
