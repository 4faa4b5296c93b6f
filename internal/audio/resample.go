package audio

// Resampler converts a sample stream between rates by zero-order hold: each
// output sample repeats the most recent input sample, with no
// interpolation. It keeps its position across calls, so a stream can be
// fed chunk by chunk.
type Resampler struct {
	from, to int
	in, out  int64 // samples consumed / produced so far
}

// NewResampler returns a resampler from rate from to rate to (Hz).
func NewResampler(from, to int) *Resampler {
	return &Resampler{from: from, to: to}
}

// Process appends the resampled form of samples to dst.
func (r *Resampler) Process(dst, samples []int16) []int16 {
	if r.from == r.to {
		r.in += int64(len(samples))
		r.out += int64(len(samples))
		return append(dst, samples...)
	}
	end := r.in + int64(len(samples))
	// produce every output index k with floor(k*from/to) < end
	limit := (end*int64(r.to) + int64(r.from) - 1) / int64(r.from)
	for ; r.out < limit; r.out++ {
		src := r.out * int64(r.from) / int64(r.to)
		dst = append(dst, samples[src-r.in])
	}
	r.in = end
	return dst
}

// Reframer resamples a stream to the broadcast rate and cuts it into
// FrameSamples-long frames.
type Reframer struct {
	rs      *Resampler
	pending []int16
}

// NewReframer returns a Reframer for input at sampleRate.
func NewReframer(sampleRate int) *Reframer {
	return &Reframer{rs: NewResampler(sampleRate, SampleRate)}
}

// Push returns every complete frame available after adding samples.
func (f *Reframer) Push(samples []int16) [][]int16 {
	f.pending = f.rs.Process(f.pending, samples)
	var frames [][]int16
	for len(f.pending) >= FrameSamples {
		frame := make([]int16, FrameSamples)
		copy(frame, f.pending)
		frames = append(frames, frame)
		f.pending = f.pending[FrameSamples:]
	}
	// compact so the backing array does not grow without bound
	f.pending = append(f.pending[:0:0], f.pending...)
	return frames
}

// Flush returns the leftover samples padded with silence to a full frame,
// or nil when nothing is pending.
func (f *Reframer) Flush() []int16 {
	if len(f.pending) == 0 {
		return nil
	}
	frame := make([]int16, FrameSamples)
	copy(frame, f.pending)
	f.pending = nil
	return frame
}
