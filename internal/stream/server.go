package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/satindergrewal/bytebeat/internal/audio"
)

// Progress is the session's own account of how far it has got.
type Progress struct {
	Fraction float64       // of the whole session, in [0, 1]
	Chunks   int           // chunks handed to the broadcast so far
	Faults   int           // samples in those chunks that fell back to 0
	Position time.Duration // audio released to listeners
}

// ProgressFunc reports the session's current progress.
type ProgressFunc func() Progress

// Status is the JSON body of /api/status.
type Status struct {
	Expression      string  `json:"expression"`
	SampleRate      int     `json:"sample_rate"`
	Duration        float64 `json:"duration"`
	Offset          int64   `json:"offset"`
	Progress        float64 `json:"progress"`
	Position        float64 `json:"position"`
	Chunks          int     `json:"chunks"`
	SampleFaults    int     `json:"sample_faults"`
	Finished        bool    `json:"finished"`
	HTTPListeners   int     `json:"http_listeners"`
	WebRTCListeners int     `json:"webrtc_listeners"`
	Frames          int64   `json:"frames"`
	FramesDelivered int64   `json:"frames_delivered"`
	FramesDropped   int64   `json:"frames_dropped"`
}

// Server exposes one session over HTTP (MP3) and WebRTC (Opus).
type Server struct {
	info        audio.SessionInfo
	broadcaster *Broadcaster
	webrtc      *WebRTCHandler
	progress    ProgressFunc
	srv         *http.Server
	ln          net.Listener
}

func NewServer(addr string, b *Broadcaster, info audio.SessionInfo, progress ProgressFunc) *Server {
	s := &Server{
		info:        info,
		broadcaster: b,
		webrtc:      NewWebRTCHandler(b),
		progress:    progress,
	}
	s.srv = &http.Server{Addr: addr, Handler: s.Handler()}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.serveIndex)
	mux.Handle("/stream", NewHTTPHandler(s.broadcaster, "bytebeat: "+s.info.Expression))
	mux.Handle("/offer", s.webrtc)
	mux.HandleFunc("GET /api/status", s.serveStatus)
	return mux
}

// Start binds the listening socket and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	log.Printf("bytebeat live on http://%s", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Close disconnects WebRTC peers and HTTP listeners.
func (s *Server) Close() error {
	s.webrtc.Close()
	return s.srv.Close()
}

// Status snapshots the session and its audience.
func (s *Server) Status() Status {
	peers := s.webrtc.PeerCount()
	st := Status{
		Expression:      s.info.Expression,
		SampleRate:      s.info.SampleRate,
		Duration:        s.info.Duration,
		Offset:          s.info.Offset,
		Finished:        s.broadcaster.Ended(),
		HTTPListeners:   max(s.broadcaster.ListenerCount()-peers, 0),
		WebRTCListeners: peers,
	}
	if s.progress != nil {
		p := s.progress()
		st.Progress = p.Fraction
		st.Chunks = p.Chunks
		st.SampleFaults = p.Faults
		st.Position = p.Position.Seconds()
	}
	st.Frames, st.FramesDelivered, st.FramesDropped = s.broadcaster.Stats()
	return st
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexHTML, html.EscapeString(s.info.Expression), s.info.SampleRate, s.info.Duration, s.info.Offset)
}

// The page polls /api/status once a second for progress and fault counts.
const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>bytebeat</title></head>
<body>
<pre>%s</pre>
<p>%d Hz, %.2fs from t=%d</p>
<audio controls autoplay src="/stream"></audio>
<p><progress id="p" max="1" value="0"></progress> <span id="s"></span></p>
<script>
async function poll() {
  const st = await (await fetch("/api/status")).json();
  document.getElementById("p").value = st.progress;
  document.getElementById("s").textContent = st.finished
    ? "finished"
    : st.chunks + " chunks, " + st.sample_faults + " faulted samples";
  if (!st.finished) setTimeout(poll, 1000);
}
poll();
</script>
</body></html>
`
