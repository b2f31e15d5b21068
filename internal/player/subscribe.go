package player

const subscriptionBuffer = 16

// Subscription delivers state snapshots. C is closed when the subscription ends.
type Subscription struct {
	C      <-chan State
	cancel func()
}

// Cancel ends the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() { s.cancel() }

// Subscribe registers an observer and immediately delivers the current state.
//
// Slow observers never block the engine: when the buffer is full the oldest pending snapshot is dropped.
func (e *Engine) Subscribe() *Subscription {
	ch := make(chan State, subscriptionBuffer)

	e.mu.Lock()
	defer e.mu.Unlock()

	ch <- e.snapshot()
	if e.closed {
		close(ch)
		return &Subscription{C: ch, cancel: func() {}}
	}

	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subMu.Unlock()

	return &Subscription{C: ch, cancel: func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			close(c)
			delete(e.subs, id)
		}
	}}
}

// publish sends the current snapshot to every observer without blocking. Caller holds e.mu.
func (e *Engine) publish() {
	s := e.snapshot()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
