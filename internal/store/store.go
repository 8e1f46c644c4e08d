// Package store provides the job record store backends: in-memory,
// Postgres, and Redis. All implement job.Store.
//
// Every single-record mutation goes through Mutate, which runs the
// transition callback and the write as one atomic unit keyed by job ID:
// the memory backend holds a lock across the callback, Postgres holds a row
// lock inside a transaction, and Redis uses a WATCH-based optimistic
// transaction. Records for different IDs never contend.
package store
