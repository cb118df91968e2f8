// Package migrate implements a SQL migration runner: a filesystem-backed
// store of versioned scripts, a bookkeeping ledger persisted in the target
// database, and a runner that applies pending migrations in order, each in
// its own transaction, under a database-level advisory lock.
package migrate
