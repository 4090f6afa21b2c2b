package vitals

// ringChannel is a bounded buffer with overwrite-oldest semantics. The
// publisher must never block on a slow observer, so a full buffer drops the
// stalest snapshot instead of applying backpressure.
type ringChannel[T any] struct {
	ch chan T
}

func newRingChannel[T any](capacity int) *ringChannel[T] {
	if capacity <= 0 {
		panic("vitals: ring capacity must be > 0")
	}
	return &ringChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Consumers range over it until Close.
func (rc *ringChannel[T]) C() <-chan T {
	return rc.ch
}

// send inserts v, discarding the oldest buffered element if needed. It never
// blocks. Returns true if an element was dropped.
func (rc *ringChannel[T]) send(v T) bool {
	select {
	case rc.ch <- v:
		return false
	default:
	}
	dropped := false
	select {
	case <-rc.ch:
		dropped = true
	default:
	}
	rc.ch <- v
	return dropped
}

func (rc *ringChannel[T]) close() {
	close(rc.ch)
}
