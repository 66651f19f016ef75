// Package store provides the licence.Store implementations: a Postgres
// store for production (pgx driver, schema managed by golang-migrate)
// and an in-memory store for tests and single-process development runs.
//
// Both implementations satisfy the same atomicity contract: the bind
// transition in CompareAndBind is a single atomic unit per licence code.
// Postgres gets this from a conditional single-statement UPDATE; the
// memory store from a mutex held across the read-modify-write.
package store
