// Package repositories implements the local store: durable, collection-scoped key-value storage that survives restarts.
//
// The [Store] interface is the whole contract: Get, GetAll, Put and Delete against a named [Collection].
// Records carry a JSON document, an optional binary payload, and a Synced flag marking write-back rows that still need to be pushed.
//
// Key Implementations:
//   - [SQLiteStore] : one sqlite table per collection, atomic upserts, per-collection writer serialization
//   - [MemoryStore] : the same contract in memory, clone-on-read
//   - [FallbackStore] : wraps a primary and degrades to a [MemoryStore] for the rest of the session on the first [shared.ErrStoreUnavailable]
//
// Typed repositories ([PlaylistRepository], [LyricsRepository], [UploadRepository], [HistoryRepository]) sit on top of any Store.
//
// Schema versions live in shared/sql and are applied by [shared.RunMigrations]; every version only adds collections.
package repositories
