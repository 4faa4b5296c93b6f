package playback

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
)

// pulseStream bridges blocking writes onto PulseAudio's pull-based
// playback callback. The channel holds at most one pending buffer, so
// Write blocks until the server has started consuming the previous one.
type pulseStream struct {
	client *pulse.Client
	stream *pulse.PlaybackStream
	bufs   chan []float32

	pending     []float32 // only touched by the callback goroutine
	interrupted bool
}

func openPulse(sampleRate, framesPerBuffer int) (Transport, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("bytebeat"))
	if err != nil {
		return nil, fmt.Errorf("pulse connect: %w", err)
	}
	s := &pulseStream{client: client, bufs: make(chan []float32, 1)}
	stream, err := client.NewPlayback(pulse.Float32Reader(s.read),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackBufferSize(framesPerBuffer),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pulse playback: %w", err)
	}
	s.stream = stream
	stream.Start()
	return s, nil
}

// read fills out from the queued buffers. It reports EndOfData once the
// queue is closed and empty.
func (s *pulseStream) read(out []float32) (int, error) {
	n := 0
	for n < len(out) {
		if len(s.pending) == 0 {
			buf, ok := <-s.bufs
			if !ok {
				if n == 0 {
					return 0, pulse.EndOfData
				}
				return n, nil
			}
			s.pending = buf
		}
		c := copy(out[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	return n, nil
}

func (s *pulseStream) Write(ctx context.Context, samples []float32) error {
	if err := s.stream.Error(); err != nil {
		return err
	}
	return s.enqueue(ctx, samples)
}

// enqueue hands a copy of samples to the callback. It gives up when ctx
// is done, for instance when the server has stopped pulling.
func (s *pulseStream) enqueue(ctx context.Context, samples []float32) error {
	buf := make([]float32, len(samples))
	copy(buf, samples)
	select {
	case s.bufs <- buf:
		return nil
	case <-ctx.Done():
		s.interrupted = true
		return ctx.Err()
	}
}

// Close lets queued audio play out after a complete session, or stops at
// once after an interrupted one, then releases the stream.
func (s *pulseStream) Close() error {
	close(s.bufs)
	if s.interrupted {
		s.stream.Stop()
	} else {
		s.stream.Drain()
	}
	err := s.stream.Error()
	s.stream.Close()
	s.client.Close()
	return err
}
