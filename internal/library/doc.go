// Package library is the user-initiated mutation path: likes, follows, playlists, lyrics and local media.
//
// Every mutation applies its local change first so reads reflect it immediately, then tries the remote API.
//
//   - Offline, unauthenticated, or a change already pending for the same target: the mutation is queued
//   - Remote success: cached rows are marked synced
//   - Network or transient failure: the mutation is queued, a warning is raised and no error is returned
//   - Rejection: the local change is rolled back and the error is returned
//   - Unauthorized: the session is cleared, the mutation is queued and the error is returned
//
// [Library.Rollback] reverts the local change behind a pending action the sync service dropped.
//
// [Library.ImportFile] and [Watcher] bring local mp3 files into the uploadedFiles collection.
package library
