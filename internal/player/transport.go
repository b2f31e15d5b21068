package player

import (
	"context"
	"time"
)

// Transport is the underlying media session.
//
// Load queues uri paused. ended fires at most once, when that media plays to its end; implementations must not
// invoke it while holding locks the engine could wait on.
type Transport interface {
	Load(ctx context.Context, uri string, ended func()) error
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	SetVolume(v float64) error
	SetMuted(muted bool) error
	Stop() error
}

// Preparer is implemented by transports whose Load does slow I/O such as downloading the media.
// The engine calls Prepare without holding its lock and commits the result only if no other load or stop
// happened meanwhile.
type Preparer interface {
	Prepare(ctx context.Context, uri string) (Prepared, error)
}

// Prepared is decoded media waiting to be installed.
type Prepared interface {
	// Commit replaces the loaded media, queued paused. It has the semantics of [Transport.Load].
	Commit(ended func()) error
	// Discard frees media that will never be committed.
	Discard()
}

// NullTransport accepts every command and never plays anything. It backs headless runs.
type NullTransport struct{}

func (NullTransport) Load(context.Context, string, func()) error { return nil }
func (NullTransport) Play() error                                { return nil }
func (NullTransport) Pause() error                               { return nil }
func (NullTransport) Seek(time.Duration) error                   { return nil }
func (NullTransport) SetVolume(float64) error                    { return nil }
func (NullTransport) SetMuted(bool) error                        { return nil }
func (NullTransport) Stop() error                                { return nil }
