package playback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/jfreymuth/pulse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/bytebeat/internal/audio"
	"github.com/satindergrewal/bytebeat/internal/config"
	"github.com/satindergrewal/bytebeat/internal/stream"
	"github.com/satindergrewal/bytebeat/internal/synth"
)

type fakeTransport struct {
	writes [][]float32
	closed int
	err    error
}

func (f *fakeTransport) Write(_ context.Context, samples []float32) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, append([]float32(nil), samples...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

func openerFor(t Transport) Opener {
	return func(int, int) (Transport, error) { return t, nil }
}

// stalledTransport never accepts samples, like a device that stopped
// pulling; it only gives up when ctx is done.
type stalledTransport struct {
	closed atomic.Int32
}

func (s *stalledTransport) Write(ctx context.Context, _ []float32) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stalledTransport) Close() error {
	s.closed.Add(1)
	return nil
}

func failingOpener(int, int) (Transport, error) {
	return nil, errors.New("no device")
}

type fakePlayer struct {
	paths []string
	err   error
}

func (p *fakePlayer) Play(_ context.Context, path string) error {
	p.paths = append(p.paths, path)
	return p.err
}

// recordingSink captures chunks without touching any device.
type recordingSink struct {
	chunks  []synth.Chunk
	closed  int
	failAt  int // 1-based write index that fails; 0 never fails
	onWrite func()
}

func (s *recordingSink) Name() string      { return "recording" }
func (s *recordingSink) Kind() Kind        { return KindLive }
func (s *recordingSink) Open(Format) error { return nil }
func (s *recordingSink) Close() error      { s.closed++; return nil }
func (s *recordingSink) Write(_ context.Context, c synth.Chunk) error {
	if s.failAt > 0 && len(s.chunks)+1 == s.failAt {
		return errors.New("device lost")
	}
	s.chunks = append(s.chunks, c)
	if s.onWrite != nil {
		s.onWrite()
	}
	return nil
}

func identity() synth.Evaluator {
	return synth.EvalFunc(func(t int64) (int64, bool) { return t, true })
}

func newGenerator(t *testing.T, eval synth.Evaluator, sr int, d float64) *synth.Generator {
	t.Helper()
	g, err := synth.NewGenerator(eval, synth.Params{SampleRate: sr, Duration: d})
	require.NoError(t, err)
	return g
}

func TestLiveSinkWritesNormalisedFloats(t *testing.T) {
	tr := &fakeTransport{}
	s := NewLiveSink("fake", openerFor(tr))
	require.NoError(t, s.Open(Format{SampleRate: 16, ChunkSize: 4}))

	err := s.Write(context.Background(), synth.Chunk{Samples: []int16{-32768, 0, 16384, -256}})
	require.NoError(t, err)
	require.Len(t, tr.writes, 1)
	assert.Equal(t, []float32{-1, 0, 0.5, -0.0078125}, tr.writes[0])

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, tr.closed)
}

func TestLiveSinkWriteErrorIsWrapped(t *testing.T) {
	tr := &fakeTransport{err: errors.New("underrun")}
	s := NewLiveSink("fake", openerFor(tr))
	require.NoError(t, s.Open(Format{SampleRate: 16, ChunkSize: 4}))

	err := s.Write(context.Background(), synth.Chunk{Samples: make([]int16, 4)})
	require.Error(t, err)
	assert.ErrorIs(t, err, tr.err)
	assert.Contains(t, err.Error(), "fake")
}

func TestLiveSinkCloseUnopened(t *testing.T) {
	s := NewLiveSink("fake", failingOpener)
	assert.NoError(t, s.Close())
}

func TestSelectFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	live := NewLiveSink("fake", failingOpener)
	file := NewFileSink(dir, nil)

	s, err := Select(Format{SampleRate: 8000, ChunkSize: 2000}, live, file)
	require.NoError(t, err)
	assert.Equal(t, KindFile, s.Kind())
	assert.Equal(t, dir, filepath.Dir(file.Path()))
	require.NoError(t, s.Close())
}

func TestSelectPrefersFirst(t *testing.T) {
	tr := &fakeTransport{}
	live := NewLiveSink("fake", openerFor(tr))
	file := NewFileSink(t.TempDir(), nil)

	s, err := Select(Format{SampleRate: 8000, ChunkSize: 2000}, live, file)
	require.NoError(t, err)
	assert.Equal(t, KindLive, s.Kind())
	assert.Empty(t, file.Path())
	require.NoError(t, s.Close())
}

func TestSelectNoSink(t *testing.T) {
	_, err := Select(Format{SampleRate: 8000, ChunkSize: 2000},
		NewLiveSink("a", failingOpener),
		NewFileSink(filepath.Join(t.TempDir(), "missing", "dir"), nil),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSink)
	assert.Contains(t, err.Error(), "no device")
}

func TestFileSinkRendersWAV(t *testing.T) {
	player := &fakePlayer{}
	s := NewFileSink(t.TempDir(), player)
	require.NoError(t, s.Open(Format{SampleRate: 8000, ChunkSize: 4}))

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, synth.Chunk{Samples: []int16{-32768, -32512, -32256, 0}}))
	require.NoError(t, s.Write(ctx, synth.Chunk{Samples: []int16{32512, 1, -1, 256}}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, []string{s.Path()}, player.paths)

	f, err := os.Open(s.Path())
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 8000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, 16, int(dec.BitDepth))
	assert.Equal(t, []int{-32768, -32512, -32256, 0, 32512, 1, -1, 256}, buf.Data)
}

func TestFileSinkPlayerFailureIsNotAnError(t *testing.T) {
	player := &fakePlayer{err: errors.New("no player")}
	s := NewFileSink(t.TempDir(), player)
	require.NoError(t, s.Open(Format{SampleRate: 8000, ChunkSize: 2}))
	require.NoError(t, s.Write(context.Background(), synth.Chunk{Samples: []int16{1, 2}}))

	assert.NoError(t, s.Close())
	assert.Len(t, player.paths, 1)
	assert.FileExists(t, s.Path())
}

func TestFileSinkWriteBeforeOpen(t *testing.T) {
	s := NewFileSink(t.TempDir(), nil)
	assert.Error(t, s.Write(context.Background(), synth.Chunk{Samples: []int16{1}}))
	assert.NoError(t, s.Close())
}

func TestCommandPlayerFallsThrough(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX true/false")
	}
	p := &CommandPlayer{Commands: [][]string{
		{"bytebeat-no-such-player", PathArg},
		{"false", PathArg},
		{"true", PathArg},
	}}
	assert.NoError(t, p.Play(context.Background(), "x.wav"))

	p = &CommandPlayer{Commands: [][]string{
		{"bytebeat-no-such-player", PathArg},
		{"false", PathArg},
	}}
	err := p.Play(context.Background(), "x.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "false")

	assert.Error(t, (&CommandPlayer{}).Play(context.Background(), "x.wav"))
}

func TestCommandPlayerStopsWhenPlayerIsKilled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX signals")
	}
	marker := filepath.Join(t.TempDir(), "second-player-ran")
	p := &CommandPlayer{Commands: [][]string{
		{"sh", "-c", "kill -INT $$"},
		{"sh", "-c", "touch " + marker},
	}}

	err := p.Play(context.Background(), "x.wav")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlayerInterrupted)
	assert.NoFileExists(t, marker)
}

func TestCommandPlayerStopsOnCancel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX sleep")
	}
	marker := filepath.Join(t.TempDir(), "second-player-ran")
	p := &CommandPlayer{Commands: [][]string{
		{"sleep", "5"},
		{"sh", "-c", "touch " + marker},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Play(ctx, "x.wav")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoFileExists(t, marker)
}

func TestDefaultPlayer(t *testing.T) {
	linux := DefaultPlayer("linux").Commands
	require.Len(t, linux, 3)
	assert.Equal(t, "aplay", linux[0][0])
	assert.Equal(t, "ffplay", linux[1][0])
	assert.Equal(t, "play", linux[2][0])

	assert.Equal(t, "afplay", DefaultPlayer("darwin").Commands[0][0])

	win := DefaultPlayer("windows").Commands[0]
	assert.Equal(t, "powershell", win[0])
	assert.Contains(t, win[len(win)-1], PathArg)

	for _, goos := range []string{"linux", "darwin", "windows", "freebsd"} {
		for _, cmd := range DefaultPlayer(goos).Commands {
			assert.Contains(t, cmd[len(cmd)-1], PathArg, "%s: %v", goos, cmd)
		}
	}
}

func TestCandidates(t *testing.T) {
	names := func(sinks []Sink) []string {
		var out []string
		for _, s := range sinks {
			out = append(out, s.Name())
		}
		return out
	}
	cfg := config.Config{Backend: config.BackendAuto, OutputDir: t.TempDir()}

	sinks, err := Candidates(cfg, audio.SessionInfo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"portaudio", "pulse", "file"}, names(sinks))

	cfg.Backend = config.BackendPulse
	sinks, err = Candidates(cfg, audio.SessionInfo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pulse", "file"}, names(sinks))

	cfg.Backend = config.BackendFile
	sinks, err = Candidates(cfg, audio.SessionInfo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"file"}, names(sinks))

	cfg.ServeAddr = ":0"
	sinks, err = Candidates(cfg, audio.SessionInfo{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"broadcast"}, names(sinks))

	cfg.ServeAddr = ""
	cfg.Backend = "alsa"
	_, err = Candidates(cfg, audio.SessionInfo{}, nil)
	assert.Error(t, err)
}

func TestRunPlaysEveryChunk(t *testing.T) {
	sink := &recordingSink{}
	g := newGenerator(t, identity(), 16, 2)

	var progress []float64
	res, err := Run(context.Background(), sink, g, func(c synth.Chunk) {
		progress = append(progress, c.Progress)
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Chunks: 8}, res)
	assert.Len(t, sink.chunks, 8)
	assert.Equal(t, 1, sink.closed)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i, c := range sink.chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{}
	sink.onWrite = func() {
		if len(sink.chunks) == 2 {
			cancel()
		}
	}
	g := newGenerator(t, identity(), 16, 10)

	res, err := Run(ctx, sink, g, nil)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 1, sink.closed)
	assert.Equal(t, 37, g.Remaining())
}

func TestRunWriteErrorEndsSession(t *testing.T) {
	sink := &recordingSink{failAt: 3}
	g := newGenerator(t, identity(), 16, 10)

	res, err := Run(context.Background(), sink, g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")
	assert.False(t, res.Interrupted)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 1, sink.closed)
}

func TestRunSumsFaults(t *testing.T) {
	sink := &recordingSink{}
	eval := synth.EvalFunc(func(t int64) (int64, bool) { return 0, t%2 == 0 })
	g := newGenerator(t, eval, 16, 1)

	res, err := Run(context.Background(), sink, g, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Faults)
}

func TestRunWithFileSinkRendersPartialOnInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	file := NewFileSink(t.TempDir(), nil)
	s, err := Select(Format{SampleRate: 16, ChunkSize: 4}, file)
	require.NoError(t, err)

	g := newGenerator(t, identity(), 16, 10)
	res, err := Run(ctx, s, g, func(c synth.Chunk) {
		if c.Index == 2 {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.True(t, res.Interrupted)

	f, err := os.Open(file.Path())
	require.NoError(t, err)
	defer f.Close()
	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 12)
}

func TestBroadcastSinkStreamsFrames(t *testing.T) {
	info := audio.SessionInfo{Expression: "t", SampleRate: 8000, Duration: 0.25}
	s := NewBroadcastSink("127.0.0.1:0", info)
	require.NoError(t, s.Open(Format{SampleRate: 8000, ChunkSize: 2000}))
	l := s.Broadcaster().Subscribe()

	g := newGenerator(t, identity(), 8000, 0.25)
	c, ok := g.Next()
	require.True(t, ok)
	require.NoError(t, s.Write(context.Background(), c))

	resp, err := http.Get("http://" + s.Addr() + "/api/status")
	require.NoError(t, err)
	var st stream.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.Equal(t, "t", st.Expression)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, 1, st.Chunks)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// 250ms at 8kHz: 12 whole frames plus the padded remainder
	assert.Len(t, l.C, 13)
	frame := <-l.C
	assert.Equal(t, int64(0), frame.Seq)
	assert.Len(t, frame.Samples, audio.FrameSamples)
	// zero-order hold: each 8kHz sample repeats six times at 48kHz
	assert.Equal(t, synth.ToSample(0), frame.Samples[5])
	assert.Equal(t, synth.ToSample(1), frame.Samples[6])
	assert.True(t, s.Broadcaster().Ended())
}

func TestBroadcastSinkWriteCancelled(t *testing.T) {
	s := NewBroadcastSink("127.0.0.1:0", audio.SessionInfo{})
	require.NoError(t, s.Open(Format{SampleRate: 8000, ChunkSize: 2000}))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Write(ctx, synth.Chunk{Samples: make([]int16, 2000)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlaySwitchesSinkMidStream(t *testing.T) {
	first := &recordingSink{failAt: 3}
	second := &recordingSink{}
	g := newGenerator(t, identity(), 16, 10)

	res, err := Play(context.Background(), Format{SampleRate: 16, ChunkSize: 4},
		[]Sink{first, second}, g, nil)
	require.NoError(t, err)
	assert.Equal(t, 39, res.Chunks)
	assert.Equal(t, []string{"recording", "recording"}, res.Sinks)
	assert.Len(t, first.chunks, 2)
	require.Len(t, second.chunks, 37)
	assert.Equal(t, 3, second.chunks[0].Index)
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.closed)
}

func TestPlayFailsWithoutReplacement(t *testing.T) {
	only := &recordingSink{failAt: 1}
	g := newGenerator(t, identity(), 16, 1)

	_, err := Play(context.Background(), Format{SampleRate: 16, ChunkSize: 4}, []Sink{only}, g, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device lost")
}

func TestPlayNoSink(t *testing.T) {
	g := newGenerator(t, identity(), 16, 1)
	_, err := Play(context.Background(), Format{SampleRate: 16, ChunkSize: 4},
		[]Sink{NewLiveSink("a", failingOpener)}, g, nil)
	assert.ErrorIs(t, err, ErrNoSink)
	assert.Equal(t, 4, g.Remaining())
}

func TestRunCancelsStalledLiveWrite(t *testing.T) {
	tr := &stalledTransport{}
	sink := NewLiveSink("stalled", openerFor(tr))
	require.NoError(t, sink.Open(Format{SampleRate: 16, ChunkSize: 4}))
	g := newGenerator(t, identity(), 16, 10)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := Run(ctx, sink, g, nil)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.True(t, o.res.Interrupted)
		assert.Zero(t, o.res.Chunks)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked 2s after cancel")
	}
	assert.Equal(t, int32(1), tr.closed.Load())
}

func TestPulseEnqueueHonoursContext(t *testing.T) {
	s := &pulseStream{bufs: make(chan []float32, 1)}
	require.NoError(t, s.enqueue(context.Background(), []float32{1}))

	// queue full and nobody reading
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.enqueue(ctx, []float32{2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, s.interrupted)
}

func TestPulseEnqueueCopies(t *testing.T) {
	s := &pulseStream{bufs: make(chan []float32, 1)}
	in := []float32{0.5, -0.5}
	require.NoError(t, s.enqueue(context.Background(), in))
	in[0] = 9
	assert.Equal(t, []float32{0.5, -0.5}, <-s.bufs)
}

func TestPulseReadSpansBuffers(t *testing.T) {
	s := &pulseStream{bufs: make(chan []float32, 1)}

	s.bufs <- []float32{1, 2, 3}
	out := make([]float32, 2)
	n, err := s.read(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{1, 2}, out)

	// the leftover sample is served before the next buffer
	s.bufs <- []float32{4, 5}
	out = make([]float32, 3)
	n, err = s.read(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []float32{3, 4, 5}, out)
}

func TestPulseReadEndOfData(t *testing.T) {
	s := &pulseStream{bufs: make(chan []float32, 1)}
	s.bufs <- []float32{6}
	close(s.bufs)

	out := make([]float32, 4)
	n, err := s.read(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float32(6), out[0])

	n, err = s.read(out)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, pulse.EndOfData)
}
