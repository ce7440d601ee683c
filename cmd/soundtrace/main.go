// Command soundtrace uploads audio files into, and queries matches from, a
// pgvector-backed fingerprint store.
//
// Usage:
//
//	soundtrace upload --path FILE --title TITLE --singer-id ID --db URL [--date dd/mm/yyyy]
//	soundtrace upload-bulk --dir DIR --parser SCRIPT --db URL [--max-concurrency N]
//	soundtrace discover --path FILE --db URL [--max-distance F] [--results-per N] [--max-concurrency N] [--n-matches N] [--json]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/cwbudde/soundtrace/dsp/fftplan"
	"github.com/cwbudde/soundtrace/dsp/spectrogram"
	"github.com/cwbudde/soundtrace/dsp/window"
	"github.com/cwbudde/soundtrace/fingerprint/config"
	"github.com/cwbudde/soundtrace/fingerprint/decode"
	"github.com/cwbudde/soundtrace/fingerprint/discover"
	"github.com/cwbudde/soundtrace/fingerprint/ingest"
	"github.com/cwbudde/soundtrace/fingerprint/model"
	"github.com/cwbudde/soundtrace/fingerprint/store"
	"github.com/cwbudde/soundtrace/fingerprint/store/pgvector"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "upload":
		err = runUpload(os.Args[2:])
	case "upload-bulk":
		err = runUploadBulk(os.Args[2:])
	case "discover":
		err = runDiscover(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "soundtrace: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: soundtrace <upload|upload-bulk|discover> [flags]")
}

// openStore connects to the pgvector store at url and builds the decode
// pipeline and spectrogram generator every command shares.
func openStore(ctx context.Context, url string, cfg config.Config, logger *log.Logger) (*pgvector.Store, *decode.Pipeline, *spectrogram.Generator, error) {
	st, err := pgvector.Connect(ctx, url)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to store: %w", err)
	}
	pipeline := decode.NewPipeline(cfg.SampleRateHz, logger)
	specgen := spectrogram.NewGenerator(fftplan.New(), window.NewCache())
	return st, pipeline, specgen, nil
}

func runUpload(args []string) error {
	fs := pflag.NewFlagSet("upload", pflag.ExitOnError)
	path := fs.String("path", "", "audio file to ingest (required)")
	title := fs.String("title", "", "recording title (required)")
	singerID := fs.Int16("singer-id", 0, "singer id (required)")
	dbURL := fs.String("db", "", "Postgres connection URL (required)")
	date := fs.String("date", "", "first-performance date, dd/mm/yyyy")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path == "" || *title == "" || *dbURL == "" || !fs.Changed("singer-id") {
		return fmt.Errorf("upload: --path, --title, --singer-id, and --db are required")
	}

	var performed *int64
	if *date != "" {
		t, err := time.Parse("02/01/2006", *date)
		if err != nil {
			return fmt.Errorf("upload: parse --date %q: %w", *date, err)
		}
		sec := t.Unix()
		performed = &sec
	}

	cfg := config.Default()
	logger := config.NewLogger()
	ctx := context.Background()

	st, pipeline, specgen, err := openStore(ctx, *dbURL, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	samples, err := pipeline.DecodeFile(*path)
	if err != nil {
		return fmt.Errorf("upload: decode %s: %w", *path, err)
	}
	frames, err := specgen.Generate(samples, spectrogram.Config{
		FFTLen:  cfg.Spectrogram.FFTLen,
		Overlap: cfg.Spectrogram.Overlap,
	})
	if err != nil {
		return fmt.Errorf("upload: spectrogram %s: %w", *path, err)
	}

	canonicalPath, err := filepath.Abs(*path)
	if err != nil {
		return fmt.Errorf("upload: resolve path %s: %w", *path, err)
	}
	recID, err := st.InsertRecording(ctx, store.NewRecording{
		Title:     *title,
		SingerID:  model.SingerID(*singerID),
		Performed: performed,
		Path:      &canonicalPath,
	})
	if err != nil {
		return fmt.Errorf("upload: insert recording: %w", err)
	}

	if err := st.BulkInsertSegments(ctx, recID, cfg.SampleRateHz, cfg.Spectrogram, frames); err != nil {
		if err == store.ErrSegmentsAlreadyExist {
			return fmt.Errorf("upload: store precondition violated for newly inserted recording %d", recID)
		}
		return fmt.Errorf("upload: bulk insert segments: %w", err)
	}

	fmt.Printf("ingested recording %d (%d frames)\n", recID, len(frames))
	return nil
}

func runUploadBulk(args []string) error {
	fs := pflag.NewFlagSet("upload-bulk", pflag.ExitOnError)
	dir := fs.String("dir", "", "directory of audio files (required)")
	parserScript := fs.String("parser", "", "filename-parser script path (required)")
	dbURL := fs.String("db", "", "Postgres connection URL (required)")
	maxConcurrency := fs.Int("max-concurrency", ingest.DefaultMaxConcurrency, "maximum concurrent file ingests")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dir == "" || *parserScript == "" || *dbURL == "" {
		return fmt.Errorf("upload-bulk: --dir, --parser, and --db are required")
	}

	cfg := config.Default()
	logger := config.NewLogger()
	ctx := context.Background()

	st, pipeline, specgen, err := openStore(ctx, *dbURL, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	orch := ingest.NewOrchestrator(st, cfg, pipeline, specgen, nil)
	result, err := orch.Run(ctx, ingest.Options{
		Dir:            *dir,
		ParserScript:   *parserScript,
		MaxConcurrency: *maxConcurrency,
	})
	if err != nil {
		return fmt.Errorf("upload-bulk: %w", err)
	}

	fmt.Printf("ingested ok=%d err=%d\n", result.OK, result.Err)
	return nil
}

func runDiscover(args []string) error {
	fs := pflag.NewFlagSet("discover", pflag.ExitOnError)
	path := fs.String("path", "", "query audio file (required)")
	dbURL := fs.String("db", "", "Postgres connection URL (required)")
	maxDistance := fs.Float64("max-distance", discover.DefaultMaxDistance, "maximum L2 distance per per-frame query")
	resultsPer := fs.Int("results-per", discover.DefaultResultsPer, "maximum hits per per-frame query")
	maxConcurrency := fs.Int("max-concurrency", discover.DefaultMaxConcurrency, "maximum concurrent per-frame queries")
	nMatches := fs.Int("n-matches", discover.DefaultNMatches, "number of top recordings to report")
	jsonOutput := fs.Bool("json", false, "emit JSON instead of a text summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path == "" || *dbURL == "" {
		return fmt.Errorf("discover: --path and --db are required")
	}

	cfg := config.Default()
	logger := config.NewLogger()
	ctx := context.Background()

	st, pipeline, specgen, err := openStore(ctx, *dbURL, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := discover.NewEngine(st, cfg, pipeline, specgen, nil)
	result, err := engine.Discover(ctx, discover.Options{
		Path:           *path,
		MaxDistance:    *maxDistance,
		ResultsPer:     *resultsPer,
		MaxConcurrency: *maxConcurrency,
		NMatches:       *nMatches,
	})
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for rank, entry := range result.Entries {
		fmt.Printf("%d. %s — %s (score %d)\n", rank+1, entry.Song.Title, entry.SingerName, entry.Score)
	}
	fmt.Printf("spectrogram=%.3fs query=%.3fs\n", result.Timings.Spectrogram, result.Timings.Query)
	return nil
}
