// Package tasks reconciles local state against the remote API in the background.
//
// # Cycle
//
// [SyncService.RunCycle] runs one reconciliation pass:
//
//  1. Skips when [Connectivity] reports offline or no session is present
//  2. Probes the liveness endpoint
//  3. Syncs four entity groups in order: lyrics, uploaded files (admin sessions only), playlists and social
//     (likes and follows). Each group holds the pending actions of its kinds plus cached rows that are still
//     unsynced and not covered by an action.
//
// Items are split into batches sized per group. Every item of a batch runs concurrently on an errgroup and
// the next batch starts only after the whole batch finished, so at most one batch of remote calls is
// outstanding. Each item is retried with [shared.Retry].
//
// # Outcomes
//
// A confirmed success deletes the pending action and marks cached rows synced. A rejection drops the action,
// calls the [Rollbacker] and raises an error notification. Transient and network failures leave the record
// stored byte for byte and put its id in [CycleResult.Failed]. An unauthorized response aborts the cycle:
// nothing not yet started is attempted, the session is cleared and the user is asked to sign in again.
//
// # Cadence
//
// [SyncService.Start] schedules cycles on a [shared.Clock]: every interval, or after the retry interval when
// the previous cycle had failures. Reconnects reported by [Connectivity] trigger a cycle unless one started
// within the debounce window. Only one cycle is in flight at a time.
//
// # Progress Reporting
//
// Cycles emit [ProgressUpdate] values on an optional channel. Sends never block.
package tasks
