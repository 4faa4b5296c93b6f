package playback

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/satindergrewal/bytebeat/internal/synth"
)

// Result summarises a finished session.
type Result struct {
	Chunks      int
	Faults      int
	Interrupted bool
	Sinks       []string // sinks used, in order
}

// ProgressFunc observes each chunk after it has been written.
type ProgressFunc func(chunk synth.Chunk)

// Run streams every chunk of gen to an already-open sink and closes the
// sink on every exit path. A cancelled ctx stops the session early; that
// is reported through Result.Interrupted, not as an error.
func Run(ctx context.Context, sink Sink, gen *synth.Generator, onProgress ProgressFunc) (res Result, err error) {
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if res.Faults > 0 {
			log.Printf("%d of %d samples faulted and played as 0", res.Faults, res.Chunks*gen.Params().ChunkSize())
		}
	}()

	for chunk := range gen.All() {
		if ctx.Err() != nil {
			res.Interrupted = true
			return res, nil
		}
		if werr := sink.Write(ctx, chunk); werr != nil {
			if ctx.Err() != nil {
				res.Interrupted = true
				return res, nil
			}
			return res, werr
		}
		res.Chunks++
		res.Faults += chunk.Faults
		if onProgress != nil {
			onProgress(chunk)
		}
	}
	if ctx.Err() != nil && gen.Remaining() > 0 {
		res.Interrupted = true
	}
	return res, nil
}

// Play opens the first available candidate and runs gen through it. When
// that sink fails mid-stream, the chunks not yet produced continue on the
// next candidate that opens; the chunk whose write failed is skipped. An
// error is returned only when no candidate is left to take over.
func Play(ctx context.Context, format Format, candidates []Sink, gen *synth.Generator, onProgress ProgressFunc) (Result, error) {
	var total Result
	for {
		sink, i, err := selectFrom(format, candidates)
		if err != nil {
			return total, err
		}
		log.Printf("Playing through %s output", sink.Name())
		total.Sinks = append(total.Sinks, sink.Name())

		res, err := Run(ctx, sink, gen, onProgress)
		total.Chunks += res.Chunks
		total.Faults += res.Faults
		total.Interrupted = res.Interrupted
		if err == nil || gen.Remaining() == 0 {
			return total, err
		}

		candidates = candidates[i+1:]
		if len(candidates) == 0 {
			return total, fmt.Errorf("%s output failed: %w", sink.Name(), err)
		}
		log.Printf("%s output failed mid-stream: %v; switching", sink.Name(), err)
	}
}
