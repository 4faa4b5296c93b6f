package synth

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

// Evaluator computes the raw bytebeat value for a time index. ok is false
// when the evaluation faulted; v is then the fallback value 0.
type Evaluator interface {
	Eval(t int64) (v int64, ok bool)
}

// EvalFunc adapts an ordinary function to Evaluator.
type EvalFunc func(t int64) (int64, bool)

func (f EvalFunc) Eval(t int64) (int64, bool) { return f(t) }

// Params describes one generation run.
type Params struct {
	SampleRate int     // Hz
	Duration   float64 // seconds
	Offset     int64   // starting time index, in samples
}

// Validate rejects parameters that cannot produce a chunk size.
func (p Params) Validate() error {
	if p.SampleRate < 4 {
		return fmt.Errorf("sample rate %d Hz: must be at least 4", p.SampleRate)
	}
	if !(p.Duration > 0) {
		return errors.New("duration must be positive")
	}
	if p.Duration*float64(p.SampleRate) >= math.MaxInt64 {
		return fmt.Errorf("duration %gs at %d Hz: too many samples", p.Duration, p.SampleRate)
	}
	return nil
}

// ChunkSize is a quarter second of samples, rounded down.
func (p Params) ChunkSize() int {
	return p.SampleRate / 4
}

// TotalSamples is floor(duration * sample rate).
func (p Params) TotalSamples() int64 {
	return int64(p.Duration * float64(p.SampleRate))
}

// ChunkCount is the number of whole chunks in the run. Samples past the
// last whole chunk are never produced.
func (p Params) ChunkCount() int {
	cs := p.ChunkSize()
	if cs <= 0 {
		return 0
	}
	return int(p.TotalSamples() / int64(cs))
}

// Chunk is one streaming unit of 16-bit samples.
type Chunk struct {
	Index    int
	Base     int64   // time index of Samples[0]
	Samples  []int16 // always ChunkSize long
	Progress float64 // fraction of the run completed, in (0, 1]
	Faults   int     // samples whose evaluation faulted and fell back to 0
}

// ToSample maps a raw evaluator value to a 16-bit sample: the low byte is
// recentred around zero and stretched to the 16-bit range.
func ToSample(v int64) int16 {
	return int16((int(v&0xFF) - 128) * 256)
}

// Generator produces the chunks of one run lazily, one at a time. A
// Generator is consumed once; construct a new one to replay a run.
type Generator struct {
	eval   Evaluator
	params Params
	total  int
	next   int
}

// NewGenerator validates params and returns a generator positioned at the
// first chunk.
func NewGenerator(eval Evaluator, params Params) (*Generator, error) {
	if eval == nil {
		return nil, errors.New("nil evaluator")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Generator{eval: eval, params: params, total: params.ChunkCount()}, nil
}

// Params returns the run parameters.
func (g *Generator) Params() Params { return g.params }

// Len returns the total number of chunks in the run.
func (g *Generator) Len() int { return g.total }

// Remaining returns the number of chunks not yet produced.
func (g *Generator) Remaining() int { return g.total - g.next }

// Next computes the next chunk. It returns false once the run is exhausted.
func (g *Generator) Next() (Chunk, bool) {
	if g.next >= g.total {
		return Chunk{}, false
	}
	i := g.next
	g.next++

	cs := g.params.ChunkSize()
	base := g.params.Offset + int64(i)*int64(cs)
	samples := make([]int16, cs)
	faults := 0
	for j := range samples {
		v, ok := g.eval.Eval(base + int64(j))
		if !ok {
			faults++
			v = 0
		}
		samples[j] = ToSample(v)
	}
	return Chunk{
		Index:    i,
		Base:     base,
		Samples:  samples,
		Progress: float64(i+1) / float64(g.total),
		Faults:   faults,
	}, true
}

// All yields the remaining chunks. Breaking out of the loop leaves the
// generator positioned after the last chunk yielded.
func (g *Generator) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for {
			c, ok := g.Next()
			if !ok || !yield(c) {
				return
			}
		}
	}
}
