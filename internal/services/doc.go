// Package services defines the [Service] interface for the remote music API and implements it with [APIService].
//
// # Authentication
//
// Mutating endpoints go through an [oauth2.Transport] backed by the session holder's token source.
// The liveness probe is sent without credentials so reachability can be checked before a session exists.
//
// # Error Classification
//
// Every response outside 2xx is mapped onto a sentinel from the shared package:
//   - 401, 403 : [shared.ErrUnauthorized] (terminal for the session)
//   - 408, 429, 5xx : [shared.ErrTransient] (retried)
//   - other 4xx : [shared.ErrRemoteRejected] (validation, dropped)
//   - transport failures : [shared.ErrNetworkUnavailable] (queued)
//
// A missing credential surfaces as [shared.ErrNotAuthenticated] before any request is sent.
// [StatusError] carries the status code and body of a failed response.
//
// # Pacing
//
// Requests wait on a [rate.Limiter] when a rate limit is configured.
package services
