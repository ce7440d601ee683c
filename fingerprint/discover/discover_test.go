package discover

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/soundtrace/dsp/fftplan"
	"github.com/cwbudde/soundtrace/dsp/spectrogram"
	"github.com/cwbudde/soundtrace/dsp/window"
	"github.com/cwbudde/soundtrace/fingerprint/config"
	"github.com/cwbudde/soundtrace/fingerprint/decode"
	"github.com/cwbudde/soundtrace/fingerprint/model"
	"github.com/cwbudde/soundtrace/fingerprint/store"
	"github.com/cwbudde/soundtrace/fingerprint/store/memstore"
)

func writeSineWAV(t *testing.T, path string, sampleRateHz, numSamples int, freqHz float64) {
	t.Helper()

	var data bytes.Buffer
	for i := 0; i < numSamples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRateHz)))
		binary.Write(&data, binary.LittleEndian, v)
	}

	dataBytes := data.Bytes()
	blockAlign := 2
	byteRate := sampleRateHz * blockAlign

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(dataBytes)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRateHz))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(dataBytes)))
	buf.Write(dataBytes)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func newTestEngine(cfg config.Config, st store.Store) *Engine {
	specgen := spectrogram.NewGenerator(fftplan.New(), window.NewCache())
	pipeline := decode.NewPipeline(cfg.SampleRateHz, nil)
	return NewEngine(st, cfg, pipeline, specgen, nil)
}

func TestRankScoreLawSumsToTriangularNumber(t *testing.T) {
	scores := map[model.RecordingID]int{1: 0}
	// A single result list of length n contributes exactly n*(n+1)/2 when
	// every position maps to the same recording.
	n := 5
	for i := 0; i < n; i++ {
		scores[1] += n - i
	}
	want := n * (n + 1) / 2
	if scores[1] != want {
		t.Fatalf("accumulated score = %d, want %d", scores[1], want)
	}
}

func TestVoteScoringSplitAcrossRecordings(t *testing.T) {
	// Ten frames, each returning 4 hits split [A,A,B,B] in distance order:
	// score(A) = 10*(4+3) = 70, score(B) = 10*(2+1) = 30.
	const frames = 10
	scores := map[model.RecordingID]int{}
	for f := 0; f < frames; f++ {
		hits := []model.NearestHit{
			{RecordingID: 1}, {RecordingID: 1}, {RecordingID: 2}, {RecordingID: 2},
		}
		n := len(hits)
		for i, h := range hits {
			scores[h.RecordingID] += n - i
		}
	}
	if scores[1] != 70 {
		t.Fatalf("score(A) = %d, want 70", scores[1])
	}
	if scores[2] != 30 {
		t.Fatalf("score(B) = %d, want 30", scores[2])
	}
}

func TestRankTruncatesToNMatches(t *testing.T) {
	scores := map[model.RecordingID]int{1: 10, 2: 30, 3: 20}
	ranked := rank(scores, 2)
	if len(ranked) != 2 {
		t.Fatalf("len(ranked) = %d, want 2", len(ranked))
	}
	if ranked[0].id != 2 || ranked[1].id != 3 {
		t.Fatalf("ranked = %+v, want [2 3] by descending score", ranked)
	}
}

func TestRankZeroOrNegativeNReturnsAll(t *testing.T) {
	scores := map[model.RecordingID]int{1: 10, 2: 30}
	ranked := rank(scores, 0)
	if len(ranked) != 2 {
		t.Fatalf("len(ranked) = %d, want 2 (n<=0 means unbounded)", len(ranked))
	}
	if ranked := rank(scores, -1); len(ranked) != 2 {
		t.Fatalf("len(rank(scores, -1)) = %d, want 2 (n<=0 means unbounded)", len(ranked))
	}
}

func TestDiscoverSelfMatchTopsResults(t *testing.T) {
	cfg := config.Apply(
		config.WithSampleRateHz(8000),
		config.WithSpectrogram(model.SpectrogramConfig{FFTLen: 256, Overlap: 64}),
	)

	st := memstore.New(map[model.SingerID]model.Singer{7: {ID: 7, Name: "Singer Seven"}})
	e := newTestEngine(cfg, st)

	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	writeSineWAV(t, path, cfg.SampleRateHz, 4000, 440)

	ctx := context.Background()

	samples, err := e.decode.DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	frames, err := e.specgen.Generate(samples, spectrogram.Config{
		FFTLen:  cfg.Spectrogram.FFTLen,
		Overlap: cfg.Spectrogram.Overlap,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(frames) == 0 {
		t.Fatalf("expected at least one frame")
	}

	recID, err := st.InsertRecording(ctx, store.NewRecording{Title: "A Song", SingerID: 7})
	if err != nil {
		t.Fatalf("InsertRecording: %v", err)
	}
	if err := st.BulkInsertSegments(ctx, recID, cfg.SampleRateHz, cfg.Spectrogram, frames); err != nil {
		t.Fatalf("BulkInsertSegments: %v", err)
	}

	result, err := e.Discover(ctx, Options{
		Path:           path,
		MaxDistance:    1e-3,
		ResultsPer:     1,
		MaxConcurrency: 8,
		NMatches:       1,
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(result.Entries))
	}
	if result.Entries[0].Song.ID != recID {
		t.Fatalf("top match id = %d, want %d", result.Entries[0].Song.ID, recID)
	}
	if result.Entries[0].SingerName != "Singer Seven" {
		t.Fatalf("singer name = %q, want %q", result.Entries[0].SingerName, "Singer Seven")
	}
	if result.Entries[0].Score != len(frames) {
		t.Fatalf("score = %d, want %d (number of query frames)", result.Entries[0].Score, len(frames))
	}
}

func TestDiscoverEmptyResultWhenNoSegmentsStored(t *testing.T) {
	cfg := config.Apply(
		config.WithSampleRateHz(8000),
		config.WithSpectrogram(model.SpectrogramConfig{FFTLen: 256, Overlap: 64}),
	)

	st := memstore.New(nil)
	e := newTestEngine(cfg, st)

	dir := t.TempDir()
	path := filepath.Join(dir, "q.wav")
	writeSineWAV(t, path, cfg.SampleRateHz, 4000, 440)

	result, err := e.Discover(context.Background(), Options{Path: path})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("len(Entries) = %d, want 0 (no recordings in store)", len(result.Entries))
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	got := Options{Path: "x"}.withDefaults()
	if got.MaxDistance != DefaultMaxDistance {
		t.Fatalf("MaxDistance = %v, want %v", got.MaxDistance, DefaultMaxDistance)
	}
	if got.ResultsPer != DefaultResultsPer {
		t.Fatalf("ResultsPer = %d, want %d", got.ResultsPer, DefaultResultsPer)
	}
	if got.MaxConcurrency != DefaultMaxConcurrency {
		t.Fatalf("MaxConcurrency = %d, want %d", got.MaxConcurrency, DefaultMaxConcurrency)
	}
	if got.NMatches != DefaultNMatches {
		t.Fatalf("NMatches = %d, want %d", got.NMatches, DefaultNMatches)
	}
}
