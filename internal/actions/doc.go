// Package actions turns writes that could not reach the remote API into replayable pending actions.
//
// Records live in the pendingActions collection, keyed by [models.ActionKey] so there is at most one record per (kind, target).
// Enqueueing the same mutation again replaces the record. Enqueueing the opposite end state of a pending toggle removes it,
// and deleting a playlist that was never pushed removes every record for that playlist.
//
// A record is deleted only when its replay succeeded or the server rejected it outright; any other failure leaves it untouched.
package actions
