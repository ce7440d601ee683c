package decode

import (
	"fmt"

	"github.com/cwbudde/soundtrace/dsp/core"
	"github.com/cwbudde/soundtrace/dsp/resample"
)

// subChunkSamples is the fixed block size the streaming resampler is driven
// in. Both ingest and discovery resample through this same sub-chunk size
// so that frame-for-frame output is numerically identical regardless of how
// the caller's decode loop happens to batch its own reads.
const subChunkSamples = 640

// Resampler converts a mono float32 stream from one sample rate to another,
// preserving filter history across Process calls so the output of many
// small sub-chunks is identical to processing the whole stream at once.
type Resampler struct {
	inner   *resample.Resampler
	pending []float32
	scratch []float64 // reused across processChunk calls to avoid per-chunk allocation
}

// NewResampler builds a Resampler from inRate to outRate. If the rates are
// equal, Process still round-trips samples through the identity-ratio
// polyphase filter rather than special-casing a bypass, so behavior is
// uniform regardless of whether resampling is actually needed.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	inner, err := resample.NewForRates(float64(inRate), float64(outRate))
	if err != nil {
		return nil, fmt.Errorf("decode: build resampler %d->%d: %w", inRate, outRate, err)
	}
	return &Resampler{inner: inner}, nil
}

// Process appends samples to any carried-over tail and resamples complete
// subChunkSamples-sized blocks, returning the converted output and
// buffering any remainder for the next call. Callers must call Flush after
// the final Process call to drain the remaining partial block.
func (r *Resampler) Process(samples []float32) []float32 {
	r.pending = append(r.pending, samples...)

	var out []float32
	for len(r.pending) >= subChunkSamples {
		out = append(out, r.processChunk(r.pending[:subChunkSamples])...)
		r.pending = r.pending[subChunkSamples:]
	}
	return out
}

// Flush resamples any buffered remainder shorter than subChunkSamples.
func (r *Resampler) Flush() []float32 {
	if len(r.pending) == 0 {
		return nil
	}
	out := r.processChunk(r.pending)
	r.pending = nil
	return out
}

func (r *Resampler) processChunk(chunk []float32) []float32 {
	r.scratch = core.EnsureLen(r.scratch, len(chunk))
	for i, v := range chunk {
		r.scratch[i] = float64(v)
	}
	out64 := r.inner.Process(r.scratch)
	out := make([]float32, len(out64))
	for i, v := range out64 {
		out[i] = float32(v)
	}
	return out
}
