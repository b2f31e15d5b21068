// Package models defines the domain entities shared by the local store, the action queue, the playback engine and the sync service.
//
// The package contains three categories of types:
//
// 1. Playback types
//   - [Track] : a playable item, remote (AudioURL) or local (payload in the uploadedFiles collection)
//
// 2. Cached entities: local mirrors of server data used as read fallbacks and write-back rows
//   - [Playlist], [Lyrics], [UploadedFile] : mirrored entities
//   - [PlaybackHistory] : listening history rows written on every track start
//
// 3. Pending mutations
//   - [PendingAction] : a replayable mutation recorded while offline or unauthenticated, keyed by [ActionKind] and target id
//   - [LikePayload], [FollowPayload], [PlaylistPayload], [VisibilityPayload], [LyricsPayload], [UploadPayload] : per-kind payloads
//
// All cached entities implement [Entity] so the typed repositories can store them uniformly.
package models
