package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satindergrewal/bytebeat/internal/audio"
	"github.com/satindergrewal/bytebeat/internal/stream"
	"github.com/satindergrewal/bytebeat/internal/synth"
)

// flushTimeout bounds how long Close waits to release the final frame.
const flushTimeout = time.Second

// BroadcastSink serves the session to network listeners in real time:
// chunks are resampled to 48kHz, cut into 20ms frames, paced and fanned
// out over HTTP (MP3) and WebRTC (Opus).
type BroadcastSink struct {
	addr string
	info audio.SessionInfo

	server      *stream.Server
	broadcaster *stream.Broadcaster
	pacer       *audio.Pacer
	reframer    *audio.Reframer
	cancel      context.CancelFunc
	done        chan struct{}

	mu       sync.Mutex
	progress stream.Progress

	closeOnce sync.Once
	closeErr  error
}

// NewBroadcastSink listens on addr once opened.
func NewBroadcastSink(addr string, info audio.SessionInfo) *BroadcastSink {
	info.Sink = "broadcast"
	return &BroadcastSink{addr: addr, info: info}
}

func (s *BroadcastSink) Name() string { return "broadcast" }
func (s *BroadcastSink) Kind() Kind   { return KindBroadcast }

// Addr returns the bound address once open.
func (s *BroadcastSink) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// Broadcaster exposes the listener hub.
func (s *BroadcastSink) Broadcaster() *stream.Broadcaster { return s.broadcaster }

func (s *BroadcastSink) Open(format Format) error {
	if s.server != nil {
		return errors.New("already open")
	}
	s.pacer = audio.NewPacer()
	s.reframer = audio.NewReframer(format.SampleRate)
	b := stream.NewBroadcaster()
	srv := stream.NewServer(s.addr, b, s.info, s.status)
	if err := srv.Start(); err != nil {
		s.pacer.Close()
		s.pacer = nil
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.broadcaster = b
	s.server = srv
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		b.Run(ctx, s.pacer.Frames())
	}()
	return nil
}

func (s *BroadcastSink) status() stream.Progress {
	s.mu.Lock()
	p := s.progress
	s.mu.Unlock()
	p.Position = s.pacer.Position()
	return p
}

// Write blocks until the chunk has been released at real-time rate.
func (s *BroadcastSink) Write(ctx context.Context, chunk synth.Chunk) error {
	if s.server == nil {
		return errors.New("write to unopened sink")
	}
	for _, frame := range s.reframer.Push(chunk.Samples) {
		if !s.pacer.Send(ctx, frame) {
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.progress.Fraction = chunk.Progress
	s.progress.Chunks++
	s.progress.Faults += chunk.Faults
	s.mu.Unlock()
	return nil
}

// Close releases any partial frame, then stops the pipeline and server.
func (s *BroadcastSink) Close() error {
	s.closeOnce.Do(func() {
		if s.server == nil {
			return
		}
		if last := s.reframer.Flush(); last != nil {
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			s.pacer.Send(ctx, last)
			cancel()
		}
		s.pacer.Close()
		<-s.done
		s.cancel()
		s.closeErr = s.server.Close()
	})
	return s.closeErr
}
