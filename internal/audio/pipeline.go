package audio

import (
	"context"
	"sync"
	"time"
)

// Pacer releases PCM frames at real-time rate, one per FrameDuration.
type Pacer struct {
	frameCh chan []int16
	ticker  *time.Ticker

	closeOnce sync.Once

	mu     sync.RWMutex
	frames int64
}

// NewPacer creates a pacer. Call Close when done.
func NewPacer() *Pacer {
	return &Pacer{
		frameCh: make(chan []int16, 100),
		ticker:  time.NewTicker(FrameDuration),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each). It is
// closed by Close.
func (p *Pacer) Frames() <-chan []int16 {
	return p.frameCh
}

// Send waits for the next tick then queues a frame. Returns false on cancel.
func (p *Pacer) Send(ctx context.Context, frame []int16) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.ticker.C:
	}

	select {
	case p.frameCh <- frame:
	case <-ctx.Done():
		return false
	}

	p.mu.Lock()
	p.frames++
	p.mu.Unlock()
	return true
}

// Position returns how much audio has been released so far.
func (p *Pacer) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Duration(p.frames) * FrameDuration
}

// Close stops the ticker and closes the frame channel. Safe to call more
// than once; Send must not be called afterwards.
func (p *Pacer) Close() {
	p.closeOnce.Do(func() {
		p.ticker.Stop()
		close(p.frameCh)
	})
}
