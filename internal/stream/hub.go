package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// listenerBuffer is about three seconds of 20ms frames.
const listenerBuffer = 150

// Frame is one paced 20ms block of the session at the broadcast rate.
type Frame struct {
	Seq     int64 // frames released before this one
	Samples []int16
}

// Broadcaster fans the frames of one finite session out to listeners.
// When the source ends, every listener is released and later
// subscribers start out released.
type Broadcaster struct {
	mu        sync.Mutex
	listeners map[*Listener]struct{}
	ended     bool

	frames    atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// Listener is one subscriber's view of the session.
type Listener struct {
	C       chan Frame
	done    chan struct{}
	dropped atomic.Int64
}

// Done is closed when the listener is unsubscribed or the session ends.
// Frames already buffered in C stay readable.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped counts frames this listener missed because it fell behind.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{C: make(chan Frame, listenerBuffer), done: make(chan struct{})}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		close(l.done)
		return l
	}
	b.listeners[l] = struct{}{}
	return l
}

// Unsubscribe releases l. Releasing a listener twice is a no-op.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; ok {
		delete(b.listeners, l)
		close(l.done)
	}
}

func (b *Broadcaster) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Ended reports whether the session's source has finished.
func (b *Broadcaster) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// Stats returns frames released, and frames delivered to and dropped by
// listeners.
func (b *Broadcaster) Stats() (frames, delivered, dropped int64) {
	return b.frames.Load(), b.delivered.Load(), b.dropped.Load()
}

// Run numbers the frames from source and hands each one to every
// listener without blocking: a listener whose buffer is full misses the
// frame. Run returns when source is closed or ctx is done, then releases
// every listener.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	defer b.end()
	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-source:
			if !ok {
				return
			}
			b.fanOut(Frame{Seq: b.frames.Add(1) - 1, Samples: samples})
		}
	}
}

func (b *Broadcaster) fanOut(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for l := range b.listeners {
		select {
		case l.C <- f:
			b.delivered.Add(1)
		default:
			l.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
	for l := range b.listeners {
		close(l.done)
	}
	clear(b.listeners)
}

// pump hands l's frames to write in order until the session ends and the
// buffer is drained, l is released early, ctx is done or write fails.
func pump(ctx context.Context, l *Listener, write func(Frame) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.C:
			if err := write(f); err != nil {
				return err
			}
		case <-l.done:
			for {
				select {
				case f := <-l.C:
					if err := write(f); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}
