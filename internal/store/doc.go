// Package store provides SQLite-backed durable storage for lutwrap.
//
// The store holds:
//   - Records: one wrapper record per (owner, id)
//   - Known entries: the bounded per-record mirror (mirror dedup mode only)
//   - Tables: directory table accounts of the reference program
//   - Events: the append-only lifecycle log
//   - Ledger: the current slot
//
// # Transactions
//
// Every lifecycle operation runs inside WithTx. The Tx implements
// directory.Accounts, so delegated directory calls write table accounts in
// the same transaction as the record change and its event. A failure at
// any step rolls all of it back.
//
// # Ordering
//
// Events are ordered by seq (AUTOINCREMENT), never by wall-clock time.
// Slots are logical and come from the ledger.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: Mirror rows cascade with their record
//   - Single open connection: SQLite has one writer
package store
