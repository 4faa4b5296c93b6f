package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/satindergrewal/bytebeat/internal/audio"
	"github.com/satindergrewal/bytebeat/internal/synth"
)

// FileSink buffers the whole session in memory, writes it to a temporary
// mono 16-bit WAV file on Close and hands the file to a Player.
type FileSink struct {
	dir    string
	player Player

	sampleRate int
	f          *os.File
	samples    []int16

	closeOnce sync.Once
	closeErr  error
}

// NewFileSink writes into dir (os.TempDir when empty). A nil player only
// writes the file.
func NewFileSink(dir string, player Player) *FileSink {
	return &FileSink{dir: dir, player: player}
}

func (s *FileSink) Name() string { return "file" }
func (s *FileSink) Kind() Kind   { return KindFile }

// Path returns the WAV path once the sink is open.
func (s *FileSink) Path() string {
	if s.f == nil {
		return ""
	}
	return s.f.Name()
}

func (s *FileSink) Open(format Format) error {
	if s.f != nil {
		return errors.New("already open")
	}
	f, err := os.CreateTemp(s.dir, "bytebeat-*.wav")
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	s.f = f
	s.sampleRate = format.SampleRate
	return nil
}

func (s *FileSink) Write(_ context.Context, chunk synth.Chunk) error {
	if s.f == nil {
		return errors.New("write to unopened sink")
	}
	s.samples = append(s.samples, chunk.Samples...)
	return nil
}

// Close renders whatever was written, even after an interrupted session,
// then plays it. A failed playback is logged, not returned.
func (s *FileSink) Close() error {
	s.closeOnce.Do(func() {
		if s.f == nil {
			return
		}
		if s.closeErr = s.render(); s.closeErr != nil {
			return
		}
		path := s.f.Name()
		log.Printf("Wrote %.2fs of audio to %s", float64(len(s.samples))/float64(s.sampleRate), path)
		if s.player == nil {
			return
		}
		err := s.player.Play(context.Background(), path)
		switch {
		case errors.Is(err, ErrPlayerInterrupted):
			log.Printf("Playback stopped. WAV file saved to: %s", path)
		case err != nil:
			log.Printf("Could not auto-play (%v). WAV file saved to: %s", err, path)
		}
	})
	return s.closeErr
}

func (s *FileSink) render() error {
	enc := wav.NewEncoder(s.f, s.sampleRate, audio.BitDepth, audio.Channels, 1)
	data := make([]int, len(s.samples))
	for i, v := range s.samples {
		data[i] = int(v)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: s.sampleRate},
		Data:           data,
		SourceBitDepth: audio.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		s.f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		s.f.Close()
		return fmt.Errorf("finalise wav: %w", err)
	}
	return s.f.Close()
}
