package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// abortWait bounds how long Close waits for an abandoned write to return
// after the stream is aborted.
const abortWait = time.Second

type portAudioStream struct {
	stream *portaudio.Stream
	buf    []float32

	pending chan error // write still running after its ctx was done
}

func openPortAudio(sampleRate, framesPerBuffer int) (Transport, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	s := &portAudioStream{buf: make([]float32, framesPerBuffer)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open default output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

// Write copies samples into the stream buffer and blocks until the device
// has taken them. Short writes are padded with silence.
func (s *portAudioStream) Write(ctx context.Context, samples []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := copy(s.buf, samples)
	clear(s.buf[n:])

	done := make(chan error, 1)
	go func() { done <- s.stream.Write() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.pending = done
		return ctx.Err()
	}
}

// Close stops the stream, or aborts it when a write was abandoned so the
// device does not play out the queued buffer.
func (s *portAudioStream) Close() error {
	var stopErr error
	if s.pending != nil {
		stopErr = s.stream.Abort()
		select {
		case <-s.pending:
		case <-time.After(abortWait):
		}
	} else {
		stopErr = s.stream.Stop()
	}
	return errors.Join(stopErr, s.stream.Close(), portaudio.Terminate())
}
