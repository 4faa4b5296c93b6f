package playback

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/satindergrewal/bytebeat/internal/audio"
	"github.com/satindergrewal/bytebeat/internal/config"
	"github.com/satindergrewal/bytebeat/internal/synth"
)

// ErrNoSink is returned by Select when no candidate could be opened.
var ErrNoSink = errors.New("no output sink available")

// Kind enumerates the sink variants.
type Kind int

const (
	KindLive Kind = iota
	KindFile
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindLive:
		return "live"
	case KindFile:
		return "file"
	case KindBroadcast:
		return "broadcast"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Format is fixed for the lifetime of a session.
type Format struct {
	SampleRate int // Hz
	ChunkSize  int // samples per Write
}

// Sink consumes the chunks of one session. Open is called once before the
// first Write; Close releases the underlying transport and must be safe to
// call on every exit path, including more than once.
type Sink interface {
	Name() string
	Kind() Kind
	Open(format Format) error
	Write(ctx context.Context, chunk synth.Chunk) error
	Close() error
}

// Select opens the candidates in order and returns the first one that
// opens. Failures are logged and the next candidate is tried.
func Select(format Format, candidates ...Sink) (Sink, error) {
	s, _, err := selectFrom(format, candidates)
	return s, err
}

func selectFrom(format Format, candidates []Sink) (Sink, int, error) {
	var errs []error
	for i, s := range candidates {
		if err := s.Open(format); err != nil {
			log.Printf("%s output unavailable: %v", s.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		return s, i, nil
	}
	return nil, -1, errors.Join(append([]error{ErrNoSink}, errs...)...)
}

// Candidates returns the sinks to probe for cfg, in priority order. A
// serve address selects the broadcast sink alone; otherwise the live
// backends come first and the file sink is always the last resort.
func Candidates(cfg config.Config, info audio.SessionInfo, player Player) ([]Sink, error) {
	if cfg.ServeAddr != "" {
		return []Sink{NewBroadcastSink(cfg.ServeAddr, info)}, nil
	}
	file := NewFileSink(cfg.OutputDir, player)
	switch cfg.Backend {
	case config.BackendAuto, "":
		return []Sink{NewPortAudioSink(), NewPulseSink(), file}, nil
	case config.BackendPortAudio:
		return []Sink{NewPortAudioSink(), file}, nil
	case config.BackendPulse:
		return []Sink{NewPulseSink(), file}, nil
	case config.BackendFile:
		return []Sink{file}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
