package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/satindergrewal/bytebeat/internal/audio"
	"github.com/satindergrewal/bytebeat/internal/config"
	"github.com/satindergrewal/bytebeat/internal/expr"
	"github.com/satindergrewal/bytebeat/internal/playback"
	"github.com/satindergrewal/bytebeat/internal/synth"
	"github.com/satindergrewal/bytebeat/internal/telemetry"
)

var version = "dev"

func main() {
	cfg := config.Load()

	fs := flag.NewFlagSet("bytebeat", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: bytebeat [flags] <expression-file>\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		os.Exit(2)
	}

	reporter, err := telemetry.New(cfg.SentryDSN, "bytebeat@"+version)
	if err != nil {
		log.Printf("Error reporting disabled: %v", err)
	}
	defer reporter.Flush(2 * time.Second)

	if err := run(cfg, fs.Arg(0), reporter); err != nil {
		reporter.CaptureError(err)
		reporter.Flush(2 * time.Second)
		log.Fatalf("bytebeat: %v", err)
	}
}

func run(cfg config.Config, path string, reporter *telemetry.Reporter) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read expression: %w", err)
	}
	text := strings.TrimSpace(string(src))
	if text == "" {
		return fmt.Errorf("%s: empty expression", path)
	}

	prog, err := expr.Compile(text)
	if err != nil {
		var gerr *expr.GrammarError
		if errors.As(err, &gerr) {
			return fmt.Errorf("expression rejected: %w", err)
		}
		return fmt.Errorf("expression does not parse: %w", err)
	}

	params := synth.Params{SampleRate: cfg.SampleRate, Duration: cfg.Duration, Offset: cfg.TimeStart}
	gen, err := synth.NewGenerator(prog, params)
	if err != nil {
		return err
	}
	if gen.Len() == 0 {
		log.Printf("Duration %.3fs is shorter than one %d-sample chunk; nothing to play", cfg.Duration, params.ChunkSize())
		return nil
	}

	info := audio.SessionInfo{
		Expression: prog.String(),
		SampleRate: cfg.SampleRate,
		Duration:   cfg.Duration,
		Offset:     cfg.TimeStart,
	}
	candidates, err := playback.Candidates(cfg, info, playback.DefaultPlayer(runtime.GOOS))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The first signal ends the session; a second one, while a fallback
	// player is still running, terminates the process.
	signalled := ctx.Done()
	go func() {
		<-signalled
		stop()
	}()

	ctx, session := reporter.StartSession(ctx, telemetry.SessionTags{
		Backend:    cfg.Backend,
		SampleRate: cfg.SampleRate,
		Duration:   cfg.Duration,
		Chunks:     gen.Len(),
	})

	log.Printf("Playing %q at %d Hz for %.2fs (t from %d)", info.Expression, cfg.SampleRate, cfg.Duration, cfg.TimeStart)
	format := playback.Format{SampleRate: cfg.SampleRate, ChunkSize: params.ChunkSize()}
	res, err := playback.Play(ctx, format, candidates, gen, func(c synth.Chunk) {
		fmt.Fprintf(os.Stderr, "\r%5.1f%%", c.Progress*100)
	})
	fmt.Fprintln(os.Stderr)
	session.Finish(telemetry.Outcome{
		Sinks:       res.Sinks,
		Chunks:      res.Chunks,
		Faults:      res.Faults,
		Interrupted: res.Interrupted,
		Err:         err,
	})
	if err != nil {
		return err
	}

	if res.Interrupted {
		log.Printf("Interrupted after %d of %d chunks", res.Chunks, gen.Len())
	} else {
		log.Printf("Playback complete")
	}
	return nil
}
