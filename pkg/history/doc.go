// Package history keeps an append-only log of processed file operations.
//
// Entries are queued by Writer and flushed to a Storage in batches from a
// single background goroutine, so recording usage never waits on the history
// table. When the buffer is full an entry is dropped and counted rather than
// blocking the caller. Close flushes queued entries at shutdown.
//
// Two storages are provided: MemoryStorage for tests and development, and
// PGStorage over the file_history table created by the embedded migrations.
package history
