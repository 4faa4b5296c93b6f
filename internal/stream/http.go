package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/bytebeat/internal/audio"
)

// mp3Bitrate is plenty for a signal that carries 8 bits per sample.
const mp3Bitrate = "96k"

// ffmpegArgs encodes mono s16le at the broadcast rate from stdin to MP3 on stdout.
func ffmpegArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", mp3Bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

// mp3Encoder is one ffmpeg process: PCM frames in, MP3 out.
type mp3Encoder struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out io.ReadCloser
}

func startMP3Encoder(ctx context.Context) (*mp3Encoder, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs()...)
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &mp3Encoder{cmd: cmd, in: in, out: out}, nil
}

// pcmWriter writes each frame to w as little-endian 16-bit PCM.
func pcmWriter(w io.Writer) func(Frame) error {
	return func(f Frame) error {
		_, err := w.Write(audio.SamplesToBytes(f.Samples))
		return err
	}
}

// flushWriter pushes every write to the client straight away.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.f.Flush()
	return n, err
}

// HTTPHandler streams the session as MP3, one ffmpeg encoder per client.
// The response ends when the session does.
type HTTPHandler struct {
	broadcaster *Broadcaster
	name        string
}

// NewHTTPHandler serves b; name is sent as the ICY stream name.
func NewHTTPHandler(b *Broadcaster, name string) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, name: name}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	if h.broadcaster.Ended() {
		http.Error(w, "session finished", http.StatusGone)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	enc, err := startMP3Encoder(ctx)
	if err != nil {
		log.Printf("HTTP stream: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", h.name)

	l := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(l)
	log.Printf("HTTP listener connected (total: %d)", h.broadcaster.ListenerCount())

	go func() {
		pump(ctx, l, pcmWriter(enc.in))
		enc.in.Close()
	}()

	n, _ := io.Copy(flushWriter{w: w, f: flusher}, enc.out)
	cancel()
	enc.cmd.Wait()
	log.Printf("HTTP listener disconnected after %d bytes (%d frames missed)", n, l.Dropped())
}
