package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Backends accepted by Config.Backend.
const (
	BackendAuto      = "auto"
	BackendPortAudio = "portaudio"
	BackendPulse     = "pulse"
	BackendFile      = "file"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables
// and overridable by command-line flags.
type Config struct {
	// Playback
	SampleRate int     // Hz
	Duration   float64 // seconds
	TimeStart  int64   // starting time offset, in samples

	// Output
	Backend   string // auto, portaudio, pulse, file
	OutputDir string // where fallback WAV files are written
	ServeAddr string // when set, broadcast over HTTP/WebRTC instead of playing locally

	// Error reporting
	SentryDSN string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		SampleRate: envInt("BYTEBEAT_SAMPLE_RATE", 8000),
		Duration:   envFloat("BYTEBEAT_DURATION", 60),
		TimeStart:  envInt64("BYTEBEAT_TSTART", 0),

		Backend:   envStr("BYTEBEAT_BACKEND", BackendAuto),
		OutputDir: envStr("BYTEBEAT_OUTPUT_DIR", os.TempDir()),
		ServeAddr: envStr("BYTEBEAT_SERVE_ADDR", ""),

		SentryDSN: envStr("SENTRY_DSN", ""),
	}
}

// RegisterFlags binds command-line flags to c, using the current values as
// defaults so flags override the environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.SampleRate, "sr", c.SampleRate, "sample rate in Hz")
	fs.Float64Var(&c.Duration, "duration", c.Duration, "duration in seconds")
	fs.Int64Var(&c.TimeStart, "tstart", c.TimeStart, "starting time offset, in samples")
	fs.StringVar(&c.Backend, "backend", c.Backend, "output backend: auto, portaudio, pulse or file")
	fs.StringVar(&c.OutputDir, "out", c.OutputDir, "directory for rendered WAV files")
	fs.StringVar(&c.ServeAddr, "serve", c.ServeAddr, "broadcast on this address (e.g. :8080) instead of playing locally")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.SampleRate < 4 {
		return fmt.Errorf("sample rate %d Hz: must be at least 4", c.SampleRate)
	}
	if !(c.Duration > 0) {
		return fmt.Errorf("duration %v: must be positive", c.Duration)
	}
	if c.Duration*float64(c.SampleRate) >= math.MaxInt64 {
		return fmt.Errorf("duration %gs at %d Hz: too many samples", c.Duration, c.SampleRate)
	}
	switch c.Backend {
	case BackendAuto, BackendPortAudio, BackendPulse, BackendFile:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.OutputDir == "" {
		return errors.New("output directory must not be empty")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
