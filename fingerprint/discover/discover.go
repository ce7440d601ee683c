// Package discover ranks previously-ingested recordings by similarity to a
// query audio file: it decodes and fingerprints the query exactly as ingest
// does, fans out one nearest-neighbor query per frame over a bounded worker
// pool, and accumulates position-weighted votes on a single aggregator
// goroutine.
package discover

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cwbudde/soundtrace/dsp/spectrogram"
	"github.com/cwbudde/soundtrace/fingerprint/config"
	"github.com/cwbudde/soundtrace/fingerprint/decode"
	"github.com/cwbudde/soundtrace/fingerprint/model"
	"github.com/cwbudde/soundtrace/fingerprint/store"
)

// DefaultMaxDistance, DefaultResultsPer, DefaultMaxConcurrency, and
// DefaultNMatches mirror the reference deployment's CLI defaults.
const (
	DefaultMaxDistance    = 200.0
	DefaultResultsPer     = 40
	DefaultMaxConcurrency = 200
	DefaultNMatches       = 10
)

// Options configures one discovery run.
type Options struct {
	Path           string
	MaxDistance    float64
	ResultsPer     int
	MaxConcurrency int
	NMatches       int
}

// withDefaults fills any zero-valued field with its reference default.
func (o Options) withDefaults() Options {
	if o.MaxDistance == 0 {
		o.MaxDistance = DefaultMaxDistance
	}
	if o.ResultsPer <= 0 {
		o.ResultsPer = DefaultResultsPer
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.NMatches <= 0 {
		o.NMatches = DefaultNMatches
	}
	return o
}

// Song is the enriched recording identity attached to one discovery entry.
type Song struct {
	ID       model.RecordingID `json:"id"`
	Title    string            `json:"title"`
	DateSung *string           `json:"date_sung"`
	FilePath *string           `json:"file_path"`
}

// Entry is one ranked discovery result.
type Entry struct {
	Song       Song   `json:"song"`
	SingerName string `json:"singer_name"`
	Score      int    `json:"score"`
}

// Timings reports the elapsed duration, in seconds, of each discovery
// phase.
type Timings struct {
	Spectrogram float64 `json:"spectrogram"`
	Query       float64 `json:"query"`
}

// Result is the complete outcome of one discovery run.
type Result struct {
	Entries []Entry `json:"entries"`
	Timings Timings `json:"timings"`
}

// dateLayout matches the dd/mm/yyyy normalization applied at ingest time.
const dateLayout = "02/01/2006"

// Engine runs discovery against one store, decode pipeline, and spectrogram
// generator, all shared with the ingest side so configuration stays in
// lock-step between the two.
type Engine struct {
	store   store.Store
	cfg     config.Config
	decode  *decode.Pipeline
	specgen *spectrogram.Generator
	logger  *log.Logger
}

// NewEngine builds an Engine. A nil logger falls back to log.Default().
func NewEngine(st store.Store, cfg config.Config, decodePipeline *decode.Pipeline, specgen *spectrogram.Generator, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{store: st, cfg: cfg, decode: decodePipeline, specgen: specgen, logger: logger}
}

// Discover decodes and fingerprints opts.Path, fans out one nearest-neighbor
// query per frame, and returns the top opts.NMatches recordings by
// accumulated score, enriched with recording and singer metadata.
func (e *Engine) Discover(ctx context.Context, opts Options) (Result, error) {
	opts = opts.withDefaults()

	specStart := time.Now()
	samples, err := e.decode.DecodeFile(opts.Path)
	if err != nil {
		return Result{}, fmt.Errorf("discover: decode %s: %w", opts.Path, err)
	}
	frames, err := e.specgen.Generate(samples, spectrogram.Config{
		FFTLen:  e.cfg.Spectrogram.FFTLen,
		Overlap: e.cfg.Spectrogram.Overlap,
	})
	if err != nil {
		return Result{}, fmt.Errorf("discover: spectrogram %s: %w", opts.Path, err)
	}
	specElapsed := time.Since(specStart)

	queryStart := time.Now()
	scores := e.fanOut(ctx, frames, opts)
	queryElapsed := time.Since(queryStart)

	ranked := rank(scores, opts.NMatches)

	entries, err := e.enrich(ctx, ranked)
	if err != nil {
		return Result{}, fmt.Errorf("discover: enrich results: %w", err)
	}

	return Result{
		Entries: entries,
		Timings: Timings{
			Spectrogram: specElapsed.Seconds(),
			Query:       queryElapsed.Seconds(),
		},
	}, nil
}

// fanOut submits one nearest_segments query per frame over a
// semaphore-bounded pool of goroutines and accumulates position-weighted
// votes on a single consumer: for a result list of length n, the hit at
// zero-based position i contributes (n - i) to its recording's score.
//
// The spawn loop runs on its own goroutine, separate from the aggregator
// below: each worker blocks on results<- before its deferred <-sem release,
// so if the spawn loop shared the aggregator's goroutine it would starve on
// sem once MaxConcurrency workers were in flight and never reach the range
// loop that drains them. Running spawn and drain concurrently avoids that
// circular wait regardless of how many frames exceed MaxConcurrency. A
// dedicated goroutine calls WaitGroup.Wait() and closes results only after
// every query has been submitted, so the aggregator's range loop terminates
// exactly once, after every result has been counted.
func (e *Engine) fanOut(ctx context.Context, frames [][]float32, opts Options) map[model.RecordingID]int {
	results := make(chan []model.NearestHit)
	sem := make(chan struct{}, opts.MaxConcurrency)
	var wg sync.WaitGroup

	go func() {
		for _, frame := range frames {
			sem <- struct{}{}
			wg.Add(1)
			go func(frame []float32) {
				defer wg.Done()
				defer func() { <-sem }()

				hits, err := e.store.NearestSegments(ctx, frame, opts.MaxDistance, opts.ResultsPer)
				if err != nil {
					e.logger.Warn("discover: nearest-neighbor query failed", "err", err)
					return
				}
				results <- hits
			}(frame)
		}
		wg.Wait()
		close(results)
	}()

	scores := make(map[model.RecordingID]int)
	for hits := range results {
		n := len(hits)
		for i, hit := range hits {
			scores[hit.RecordingID] += n - i
		}
	}
	return scores
}

// rankedRecording pairs a recording id with its accumulated score, ready
// for sorting.
type rankedRecording struct {
	id    model.RecordingID
	score int
}

// rank sorts recordings by score descending and truncates to the top n.
// Recordings with zero score never enter scores, so they are naturally
// excluded. Ties are broken arbitrarily, matching the loose ordering
// guarantee this ranking makes.
func rank(scores map[model.RecordingID]int, n int) []rankedRecording {
	list := make([]rankedRecording, 0, len(scores))
	for id, score := range scores {
		list = append(list, rankedRecording{id: id, score: score})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].score > list[j].score })
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}

// enrich loads recording and singer metadata for each ranked recording,
// fetching the singer lookup once and reusing it across entries.
func (e *Engine) enrich(ctx context.Context, ranked []rankedRecording) ([]Entry, error) {
	if len(ranked) == 0 {
		return nil, nil
	}

	singers, err := e.store.GetSingers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch singers: %w", err)
	}

	entries := make([]Entry, 0, len(ranked))
	for _, r := range ranked {
		rec, err := e.store.GetRecording(ctx, r.id)
		if err != nil {
			return nil, fmt.Errorf("fetch recording %d: %w", r.id, err)
		}

		var dateSung *string
		if rec.Performed != nil {
			s := rec.Performed.UTC().Format(dateLayout)
			dateSung = &s
		}

		singerName := ""
		if singer, ok := singers[rec.SingerID]; ok {
			singerName = singer.Name
		}

		entries = append(entries, Entry{
			Song: Song{
				ID:       rec.ID,
				Title:    rec.Title,
				DateSung: dateSung,
				FilePath: rec.Path,
			},
			SingerName: singerName,
			Score:      r.score,
		})
	}

	return entries, nil
}
