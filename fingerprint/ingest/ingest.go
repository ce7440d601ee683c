// Package ingest walks a directory of audio files, derives each file's
// metadata through an external filename-parser script, and decodes,
// fingerprints, and stores every file at bounded concurrency.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cwbudde/soundtrace/dsp/spectrogram"
	"github.com/cwbudde/soundtrace/fingerprint/config"
	"github.com/cwbudde/soundtrace/fingerprint/decode"
	"github.com/cwbudde/soundtrace/fingerprint/parser"
	"github.com/cwbudde/soundtrace/fingerprint/store"
)

// DefaultMaxConcurrency is the bulk-ingest concurrency bound used when the
// caller does not specify one.
const DefaultMaxConcurrency = 64

// Options configures one bulk-ingest run.
type Options struct {
	Dir            string
	ParserScript   string
	MaxConcurrency int
}

// Result reports aggregate success/failure counts for a bulk-ingest run.
// Ordering across files is not guaranteed; within a single file, segments
// are always inserted in strictly increasing index.
type Result struct {
	OK  int
	Err int
}

// Orchestrator runs bulk ingest against one store, decode pipeline, and
// spectrogram generator, all shared across concurrent per-file tasks.
type Orchestrator struct {
	store   store.Store
	cfg     config.Config
	decode  *decode.Pipeline
	specgen *spectrogram.Generator
	logger  *log.Logger
}

// NewOrchestrator builds an Orchestrator. A nil logger falls back to
// log.Default().
func NewOrchestrator(st store.Store, cfg config.Config, decodePipeline *decode.Pipeline, specgen *spectrogram.Generator, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{store: st, cfg: cfg, decode: decodePipeline, specgen: specgen, logger: logger}
}

// Run walks opts.Dir, skipping non-regular files, and ingests every
// remaining file at a concurrency bound of opts.MaxConcurrency (or
// DefaultMaxConcurrency if non-positive). One permit from a
// buffered-channel semaphore is held for the duration of each file's
// decode-through-insert work; a cancelled context still releases its
// permit via the goroutine's deferred release.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: read dir %s: %w", opts.Dir, err)
	}

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	var ok, fail int64

	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			o.logger.Warn("ingest: stat failed, skipping", "entry", entry.Name(), "err", err)
			continue
		}
		if !info.Mode().IsRegular() {
			o.logger.Debug("ingest: skipping non-regular file", "entry", entry.Name())
			continue
		}

		path := filepath.Join(opts.Dir, entry.Name())

		sem <- struct{}{}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			if o.ingestOne(ctx, opts.ParserScript, path) {
				atomic.AddInt64(&ok, 1)
			} else {
				atomic.AddInt64(&fail, 1)
			}
		}(path)
	}

	wg.Wait()

	return Result{OK: int(ok), Err: int(fail)}, nil
}

// ingestOne ingests a single file, logging and absorbing any failure into
// a false return rather than propagating it to the caller.
func (o *Orchestrator) ingestOne(ctx context.Context, parserScript, path string) bool {
	canonical, err := filepath.Abs(path)
	if err != nil {
		o.logger.Warn("ingest: resolve canonical path failed, skipping", "path", path, "err", err)
		return false
	}

	exists, err := o.store.RecordingExistsByPath(ctx, canonical)
	if err != nil {
		o.logger.Error("ingest: idempotence check failed", "path", canonical, "err", err)
		return false
	}
	if exists {
		o.logger.Warn("ingest: recording already exists, skipping", "path", canonical)
		return true
	}

	meta, err := parser.Run(ctx, parserScript, filepath.Base(path))
	if err != nil {
		o.logger.Warn("ingest: filename parse failed, skipping", "path", canonical, "err", err)
		return false
	}

	samples, err := o.decode.DecodeFile(path)
	if err != nil {
		o.logger.Warn("ingest: decode failed, skipping", "path", canonical, "err", err)
		return false
	}

	frames, err := o.specgen.Generate(samples, spectrogram.Config{
		FFTLen:  o.cfg.Spectrogram.FFTLen,
		Overlap: o.cfg.Spectrogram.Overlap,
	})
	if err != nil {
		o.logger.Warn("ingest: spectrogram generation failed, skipping", "path", canonical, "err", err)
		return false
	}

	recordingID, err := o.store.InsertRecording(ctx, store.NewRecording{
		Title:     meta.Title,
		SingerID:  meta.SingerID,
		Performed: dateToUnix(meta.Date),
		Path:      &canonical,
	})
	if err != nil {
		o.logger.Error("ingest: insert recording failed", "path", canonical, "err", err)
		return false
	}

	if err := o.store.BulkInsertSegments(ctx, recordingID, o.cfg.SampleRateHz, o.cfg.Spectrogram, frames); err != nil {
		if err == store.ErrSegmentsAlreadyExist {
			// A freshly inserted recording id cannot already own segments;
			// this is a programming-error-class condition in the store,
			// not a recoverable ingest failure. Abort this file's task
			// loudly rather than retrying, without taking down the whole
			// bulk-ingest run.
			o.logger.Error("ingest: store precondition violated for newly inserted recording", "path", canonical, "recording_id", recordingID)
			return false
		}
		o.logger.Error("ingest: bulk insert segments failed", "path", canonical, "recording_id", recordingID, "err", err)
		return false
	}

	return true
}

// dateToUnix converts a parsed dd/mm/yyyy date to Unix seconds at midnight
// UTC, or returns nil if d is nil.
func dateToUnix(d *parser.Date) *int64 {
	if d == nil {
		return nil
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC).Unix()
	return &t
}
