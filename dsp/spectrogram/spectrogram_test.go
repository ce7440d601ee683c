package spectrogram

import (
	"math"
	"testing"

	"github.com/cwbudde/soundtrace/dsp/fftplan"
	"github.com/cwbudde/soundtrace/dsp/window"
	"github.com/cwbudde/soundtrace/internal/testutil"
)

func newGenerator() *Generator {
	return NewGenerator(fftplan.New(), window.NewCache())
}

func TestConfigFrameCount(t *testing.T) {
	cfg := Config{FFTLen: 1280, Overlap: 320}

	if got, want := cfg.Stride(), 960; got != want {
		t.Fatalf("Stride() = %d, want %d", got, want)
	}
	if got, want := cfg.FrameCount(90000), 93; got != want {
		t.Fatalf("FrameCount(90000) = %d, want %d", got, want)
	}
	if got := cfg.FrameCount(100); got != 0 {
		t.Fatalf("FrameCount(100) = %d, want 0 for a buffer shorter than FFTLen", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{FFTLen: 1024, Overlap: 0}, false},
		{Config{FFTLen: 1024, Overlap: 1023}, false},
		{Config{FFTLen: 1024, Overlap: 1024}, true},
		{Config{FFTLen: 1024, Overlap: -1}, true},
		{Config{FFTLen: 0, Overlap: 0}, true},
	}
	for _, c := range cases {
		err := c.cfg.Validate()
		if (err != nil) != c.wantErr {
			t.Fatalf("Validate(%+v) error = %v, wantErr %v", c.cfg, err, c.wantErr)
		}
	}
}

// TestGenerateSineFrameCount mirrors the spec's "round-trip single file"
// scenario: a 3s 440Hz sine at 30kHz with fft_len=1280, overlap=320 must
// produce exactly 93 frames, each of dimension fft_len/2 = 640.
func TestGenerateSineFrameCount(t *testing.T) {
	const sampleRate = 30000
	const seconds = 3

	samplesF64 := testutil.DeterministicSine(440, sampleRate, 1.0, sampleRate*seconds)
	samples := make([]float32, len(samplesF64))
	for i, v := range samplesF64 {
		samples[i] = float32(v)
	}

	g := newGenerator()
	cfg := Config{FFTLen: 1280, Overlap: 320}

	frames, err := g.Generate(samples, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(frames) != 93 {
		t.Fatalf("len(frames) = %d, want 93", len(frames))
	}
	for i, f := range frames {
		if len(f) != cfg.HalfLen() {
			t.Fatalf("frame %d length = %d, want %d", i, len(f), cfg.HalfLen())
		}
	}
}

func TestGenerateShortBufferYieldsNoFrames(t *testing.T) {
	g := newGenerator()
	cfg := Config{FFTLen: 1280, Overlap: 320}

	frames, err := g.Generate(make([]float32, 100), cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if frames != nil {
		t.Fatalf("frames = %v, want nil", frames)
	}
}

// TestGenerateDominantBinMatchesFrequency checks that a pure sine's energy
// lands in the expected FFT bin, a basic sanity check on the windowing +
// FFT + magnitude pipeline end to end.
func TestGenerateDominantBinMatchesFrequency(t *testing.T) {
	const sampleRate = 8000
	const fftLen = 1024
	const freq = 1000.0

	samplesF64 := testutil.DeterministicSine(freq, sampleRate, 1.0, fftLen*4)
	samples := make([]float32, len(samplesF64))
	for i, v := range samplesF64 {
		samples[i] = float32(v)
	}

	g := newGenerator()
	cfg := Config{FFTLen: fftLen, Overlap: fftLen / 2}

	frames, err := g.Generate(samples, cfg)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(frames) == 0 {
		t.Fatalf("expected at least one frame")
	}

	wantBin := int(math.Round(freq * fftLen / sampleRate))

	frame := frames[len(frames)/2]
	maxBin := 0
	for i, v := range frame {
		if v > frame[maxBin] {
			maxBin = i
		}
		_ = v
	}

	if diff := maxBin - wantBin; diff < -1 || diff > 1 {
		t.Fatalf("dominant bin = %d, want within 1 of %d", maxBin, wantBin)
	}
}

func TestGenerateSameConfigIsDeterministic(t *testing.T) {
	samplesF64 := testutil.DeterministicSine(440, 16000, 0.8, 4096)
	samples := make([]float32, len(samplesF64))
	for i, v := range samplesF64 {
		samples[i] = float32(v)
	}

	cfg := Config{FFTLen: 512, Overlap: 128}

	g1 := newGenerator()
	g2 := newGenerator()

	framesA, err := g1.Generate(samples, cfg)
	if err != nil {
		t.Fatalf("Generate (g1): %v", err)
	}
	framesB, err := g2.Generate(samples, cfg)
	if err != nil {
		t.Fatalf("Generate (g2): %v", err)
	}

	if len(framesA) != len(framesB) {
		t.Fatalf("frame count mismatch: %d vs %d", len(framesA), len(framesB))
	}
	for i := range framesA {
		if len(framesA[i]) != len(framesB[i]) {
			t.Fatalf("frame %d length mismatch", i)
		}
		for j := range framesA[i] {
			if framesA[i][j] != framesB[i][j] {
				t.Fatalf("frame %d bin %d differs: %v vs %v", i, j, framesA[i][j], framesB[i][j])
			}
		}
	}
}
