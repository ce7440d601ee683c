package decode

import (
	"math"
	"testing"
)

func sineF32(freq, sampleRate float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return out
}

// TestResamplerChunkedMatchesWhole verifies that feeding samples through
// Process in many small calls (as the pipeline does per decoded chunk)
// produces the same output as one call with the whole buffer, since the
// wrapped resampler preserves filter history across calls.
func TestResamplerChunkedMatchesWhole(t *testing.T) {
	samples := sineF32(440, 44100, 44100*2)

	whole, err := NewResampler(44100, 30000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	wholeOut := whole.Process(samples)
	wholeOut = append(wholeOut, whole.Flush()...)

	chunked, err := NewResampler(44100, 30000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	var chunkedOut []float32
	const step = 512
	for i := 0; i < len(samples); i += step {
		end := i + step
		if end > len(samples) {
			end = len(samples)
		}
		chunkedOut = append(chunkedOut, chunked.Process(samples[i:end])...)
	}
	chunkedOut = append(chunkedOut, chunked.Flush()...)

	if len(wholeOut) != len(chunkedOut) {
		t.Fatalf("len mismatch: whole=%d chunked=%d", len(wholeOut), len(chunkedOut))
	}
	for i := range wholeOut {
		if wholeOut[i] != chunkedOut[i] {
			t.Fatalf("sample %d differs: whole=%v chunked=%v", i, wholeOut[i], chunkedOut[i])
		}
	}
}

func TestResamplerEmptyInput(t *testing.T) {
	r, err := NewResampler(44100, 30000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	if out := r.Process(nil); out != nil {
		t.Fatalf("Process(nil) = %v, want nil", out)
	}
	if out := r.Flush(); out != nil {
		t.Fatalf("Flush() on empty resampler = %v, want nil", out)
	}
}

func TestResamplerInvalidRate(t *testing.T) {
	if _, err := NewResampler(0, 44100); err == nil {
		t.Fatalf("expected error for zero input rate")
	}
}
