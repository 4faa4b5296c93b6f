package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/satindergrewal/bytebeat/internal/audio"
	"github.com/satindergrewal/bytebeat/internal/synth"
)

// Transport is a continuous mono output stream accepting normalised
// float32 samples. Write blocks until the samples are accepted or ctx is
// done, in which case it returns ctx.Err().
type Transport interface {
	Write(ctx context.Context, samples []float32) error
	Close() error
}

// Opener opens a Transport at sampleRate, written framesPerBuffer samples
// at a time.
type Opener func(sampleRate, framesPerBuffer int) (Transport, error)

// LiveSink streams chunks to an audio device through a Transport.
type LiveSink struct {
	name string
	open Opener

	t   Transport
	buf []float32

	closeOnce sync.Once
	closeErr  error
}

// NewLiveSink returns a live sink backed by open.
func NewLiveSink(name string, open Opener) *LiveSink {
	return &LiveSink{name: name, open: open}
}

// NewPortAudioSink plays through the default PortAudio output device.
func NewPortAudioSink() *LiveSink { return NewLiveSink("portaudio", openPortAudio) }

// NewPulseSink plays through the PulseAudio server.
func NewPulseSink() *LiveSink { return NewLiveSink("pulse", openPulse) }

func (s *LiveSink) Name() string { return s.name }
func (s *LiveSink) Kind() Kind   { return KindLive }

func (s *LiveSink) Open(format Format) error {
	if s.t != nil {
		return errors.New("already open")
	}
	t, err := s.open(format.SampleRate, format.ChunkSize)
	if err != nil {
		return err
	}
	s.t = t
	s.buf = make([]float32, format.ChunkSize)
	return nil
}

func (s *LiveSink) Write(ctx context.Context, chunk synth.Chunk) error {
	if s.t == nil {
		return errors.New("write to unopened sink")
	}
	if len(chunk.Samples) > len(s.buf) {
		s.buf = make([]float32, len(chunk.Samples))
	}
	if err := s.t.Write(ctx, audio.ToFloat32(s.buf, chunk.Samples)); err != nil {
		return fmt.Errorf("%s write: %w", s.name, err)
	}
	return nil
}

// Close stops and releases the stream exactly once.
func (s *LiveSink) Close() error {
	s.closeOnce.Do(func() {
		if s.t != nil {
			s.closeErr = s.t.Close()
		}
	})
	return s.closeErr
}
