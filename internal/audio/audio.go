package audio

import "time"

// Broadcast format: every network listener receives mono 16-bit PCM at
// 48kHz in 20ms frames, whatever rate the formula is rendered at.
const (
	SampleRate    = 48000
	Channels      = 1
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// SessionInfo describes the formula currently being played.
type SessionInfo struct {
	Expression string
	SampleRate int
	Duration   float64 // seconds
	Offset     int64
	Sink       string
}
