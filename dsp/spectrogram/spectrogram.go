package spectrogram

import (
	"fmt"

	"github.com/cwbudde/soundtrace/dsp/buffer"
	"github.com/cwbudde/soundtrace/dsp/fftplan"
	"github.com/cwbudde/soundtrace/dsp/spectrum"
	"github.com/cwbudde/soundtrace/dsp/window"
)

// Config is an immutable STFT window/hop configuration.
type Config struct {
	FFTLen  int
	Overlap int
}

// Validate reports whether the configuration satisfies 0 <= Overlap < FFTLen.
func (c Config) Validate() error {
	if c.FFTLen <= 0 {
		return fmt.Errorf("spectrogram: fft length must be > 0: %d", c.FFTLen)
	}
	if c.Overlap < 0 || c.Overlap >= c.FFTLen {
		return fmt.Errorf("spectrogram: overlap must be in [0, %d): %d", c.FFTLen, c.Overlap)
	}
	return nil
}

// Stride returns the sample hop between successive frames.
func (c Config) Stride() int {
	return c.FFTLen - c.Overlap
}

// HalfLen returns the number of bins in a magnitude half-spectrum.
func (c Config) HalfLen() int {
	return c.FFTLen / 2
}

// FrameCount returns the number of full windows that fit in numSamples.
// A buffer shorter than FFTLen produces zero frames; partial trailing
// windows are always dropped, never padded.
func (c Config) FrameCount(numSamples int) int {
	if numSamples < c.FFTLen {
		return 0
	}
	return (numSamples-c.FFTLen)/c.Stride() + 1
}

// Generator slides windowed frames across a sample buffer and emits
// magnitude half-spectra. A Generator is safe for concurrent use by
// multiple goroutines: each Generate call only touches its own local
// buffers plus the shared, already-concurrency-safe Planner/Cache/Pool it
// was built with.
type Generator struct {
	planner *fftplan.Planner
	windows *window.Cache
	scratch *buffer.Pool
}

// NewGenerator builds a Generator backed by the given shared planner and
// window cache. Both may be shared with other Generators and other
// concurrent callers.
func NewGenerator(planner *fftplan.Planner, windows *window.Cache) *Generator {
	return &Generator{
		planner: planner,
		windows: windows,
		scratch: buffer.NewPool(),
	}
}

// Generate computes the full sequence of magnitude half-spectra for samples
// under cfg. It returns one []float32 of length cfg.HalfLen() per frame, in
// order. A buffer shorter than cfg.FFTLen yields a nil, non-error result.
func (g *Generator) Generate(samples []float32, cfg Config) ([][]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	frameCount := cfg.FrameCount(len(samples))
	if frameCount == 0 {
		return nil, nil
	}

	plan, err := g.planner.Forward(cfg.FFTLen)
	if err != nil {
		return nil, fmt.Errorf("spectrogram: acquire plan: %w", err)
	}
	hann := g.windows.Hann(cfg.FFTLen)

	stride := cfg.Stride()
	half := cfg.HalfLen()

	src := make([]complex128, cfg.FFTLen)
	dst := make([]complex128, cfg.FFTLen)
	frames := make([][]float32, frameCount)

	for k := 0; k < frameCount; k++ {
		off := k * stride
		for i := 0; i < cfg.FFTLen; i++ {
			src[i] = complex(float64(samples[off+i])*float64(hann[i]), 0)
		}

		if err := plan.Forward(dst, src); err != nil {
			return nil, fmt.Errorf("spectrogram: frame %d: %w", k, err)
		}

		frames[k] = magnitudeHalf(g.scratch, dst, half)
	}

	return frames, nil
}

// magnitudeHalf computes the non-redundant half-spectrum magnitude from the
// complex DFT output of a real-valued windowed signal, using pooled float64
// scratch to avoid allocating two extra slices per frame.
func magnitudeHalf(pool *buffer.Pool, bins []complex128, half int) []float32 {
	reBuf := pool.Get(half)
	imBuf := pool.Get(half)
	defer pool.Put(reBuf)
	defer pool.Put(imBuf)

	re := reBuf.Samples()
	im := imBuf.Samples()
	for j := 0; j < half; j++ {
		re[j] = real(bins[j])
		im[j] = imag(bins[j])
	}

	mag := make([]float64, half)
	spectrum.MagnitudeFromParts(mag, re, im)

	out := make([]float32, half)
	for j, v := range mag {
		out[j] = float32(v)
	}

	return out
}
