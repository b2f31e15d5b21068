package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Local persistence errors
	ErrStoreUnavailable = fmt.Errorf("local store unavailable")
	ErrNotFound         = fmt.Errorf("record not found")

	// Session errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrUnauthorized     = fmt.Errorf("unauthorized")

	// Remote API errors
	ErrNetworkUnavailable = fmt.Errorf("network unavailable")
	ErrRemoteRejected     = fmt.Errorf("remote rejected request")
	ErrTransient          = fmt.Errorf("transient remote failure")

	// Playback errors
	ErrPlaybackUnavailable = fmt.Errorf("playback unavailable")
	ErrEmptyQueue          = fmt.Errorf("playback queue is empty")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// IsRetryable reports whether err is worth another attempt: transient remote failures and lost connectivity.
//
// Authorization failures and remote rejections are terminal and never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRemoteRejected) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrNetworkUnavailable)
}
