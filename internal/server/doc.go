// Package server exposes the playback engine, the action queue and the sync service over HTTP.
//
// # Routes
//
// The [Server] registers a JSON API on a gin engine:
//
//	GET  /api/state      current playback state
//	POST /api/play       replace the queue, or jump within it
//	POST /api/toggle     play/pause
//	POST /api/next       advance
//	POST /api/previous   restart or step back
//	PUT  /api/repeat     set the repeat mode
//	PUT  /api/shuffle    turn shuffle on or off
//	PUT  /api/volume     set volume and mute
//	GET  /api/actions    list pending actions (?format=text|csv|markdown|json)
//	POST /api/actions    enqueue a pending action
//	POST /api/sync       run a sync cycle now
//	GET  /ws             stream state snapshots and notifications
//
// # Middleware
//
// [Middleware] is a gin handler added with [Server.Use]. [RequestLogger] logs each request through charmbracelet/log.
//
// # Websocket
//
// Each websocket client receives the current state on connect, then every engine update and every notification
// as an [Event]. One goroutine per client owns all writes to its connection.
package server
