// Package player implements the playback engine: the single authority for what is playing.
//
// # State Machine
//
//	stopped → loading → playing ⇄ paused → (ended) → loading | stopped
//
// [Engine] owns the queue, the current index, shuffle and repeat modes, volume and the one live resource [Handle].
// Every change of the current track releases the previous handle before a new one is created,
// and [Engine.Close] releases whatever is left.
//
// # Shuffle
//
// Shuffle walks a materialized permutation of the queue. A fresh permutation places the current track last,
// so with repeat all, len(queue) calls to [Engine.Next] visit every track exactly once.
// The permutation is rebuilt whenever the queue, the repeat mode or the shuffle flag changes.
//
// # Failures
//
// Engine methods never fail on playback problems. A track that cannot be resolved or loaded leaves the transport
// stopped and reports [shared.ErrPlaybackUnavailable] through the notifier.
//
// # Audio Output
//
// [SpeakerTransport] decodes mp3 through beep and plays it on the default output device.
package player
