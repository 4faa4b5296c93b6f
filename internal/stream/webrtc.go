package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/bytebeat/internal/audio"
)

const opusBitrate = 48000

// peer is one negotiated WebRTC connection carrying the session as Opus.
type peer struct {
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	ctx    context.Context
	cancel context.CancelFunc
}

// negotiate answers offer with a send-only Opus track. The returned
// session description includes every gathered ICE candidate.
func negotiate(offer webrtc.SessionDescription) (*peer, *webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, fmt.Errorf("peer connection: %w", err)
	}
	fail := func(step string, err error) (*peer, *webrtc.SessionDescription, error) {
		pc.Close()
		return nil, nil, fmt.Errorf("%s: %w", step, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "bytebeat")
	if err != nil {
		return fail("audio track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fail("add track", err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail("remote description", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail("answer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail("local description", err)
	}
	<-gathered

	ctx, cancel := context.WithCancel(context.Background())
	return &peer{pc: pc, track: track, ctx: ctx, cancel: cancel}, pc.LocalDescription(), nil
}

// stream encodes each frame as one 20ms Opus packet until the session
// ends or the peer goes away.
func (p *peer) stream(l *Listener) error {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return fmt.Errorf("opus bitrate: %w", err)
	}
	packet := make([]byte, 4000)
	return pump(p.ctx, l, func(f Frame) error {
		n, err := enc.Encode(f.Samples, packet)
		if err != nil {
			return fmt.Errorf("opus encode frame %d: %w", f.Seq, err)
		}
		return p.track.WriteSample(media.Sample{Data: packet[:n], Duration: audio.FrameDuration})
	})
}

func (p *peer) close() {
	p.cancel()
	p.pc.Close()
}

// WebRTCHandler answers SDP offers on /offer and streams to each peer.
type WebRTCHandler struct {
	broadcaster *Broadcaster

	mu    sync.Mutex
	peers map[*peer]struct{}
}

func NewWebRTCHandler(b *Broadcaster) *WebRTCHandler {
	return &WebRTCHandler{broadcaster: b, peers: make(map[*peer]struct{})}
}

func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		return
	case http.MethodPost:
	default:
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if h.broadcaster.Ended() {
		http.Error(w, "session finished", http.StatusGone)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}
	p, answer, err := negotiate(offer)
	if err != nil {
		log.Printf("WebRTC: %v", err)
		http.Error(w, "negotiation failed", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.drop(p)
		}
	})

	l := h.broadcaster.Subscribe()
	go func() {
		defer h.drop(p)
		defer h.broadcaster.Unsubscribe(l)
		if err := p.stream(l); err != nil && p.ctx.Err() == nil {
			log.Printf("WebRTC peer: %v", err)
		}
	}()
	log.Printf("WebRTC peer connected (total: %d)", h.PeerCount())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

// drop closes p once, whichever of its stream or connection ends first.
func (h *WebRTCHandler) drop(p *peer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	h.mu.Unlock()
	if ok {
		p.close()
		log.Printf("WebRTC peer disconnected (remaining: %d)", h.PeerCount())
	}
}

// Close disconnects every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		h.drop(p)
	}
}
