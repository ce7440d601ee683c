// Package store defines the logical vector-store interface the ingest and
// discovery engines depend on: recording/singer lookups and an L2
// nearest-neighbor query over segment feature vectors. A concrete
// implementation against Postgres/pgvector lives in the pgvector
// subpackage.
package store

import (
	"context"
	"errors"

	"github.com/cwbudde/soundtrace/fingerprint/model"
)

// ErrSegmentsAlreadyExist is returned by BulkInsertSegments when segments
// already exist for the given recording; the precondition violation is
// rejected without partially inserting.
var ErrSegmentsAlreadyExist = errors.New("store: segments already exist for recording")

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// NewRecording is the metadata supplied when inserting a recording; its
// ID is assigned by the store on insertion.
type NewRecording struct {
	Title     string
	SingerID  model.SingerID
	Performed *int64 // Unix seconds, optional
	Path      *string
}

// Store is the logical vector-store collaborator the ingest and discovery
// engines depend on. Implementations must enforce L2 distance semantics
// for NearestSegments.
type Store interface {
	// InsertRecording inserts a new recording row and returns its
	// server-assigned id.
	InsertRecording(ctx context.Context, rec NewRecording) (model.RecordingID, error)

	// BulkInsertSegments atomically appends all segments of one
	// recording's spectrogram. It is stream-oriented and suitable for
	// hundreds of thousands of frames per recording. If segments already
	// exist for recordingID, it returns ErrSegmentsAlreadyExist without
	// inserting any row.
	BulkInsertSegments(ctx context.Context, recordingID model.RecordingID, sampleRateHz int, cfg model.SpectrogramConfig, frames [][]float32) error

	// RecordingExistsByPath reports whether a recording with the given
	// canonical path has already been ingested.
	RecordingExistsByPath(ctx context.Context, path string) (bool, error)

	// GetRecording looks up a recording by id. It returns ErrNotFound if
	// no such recording exists.
	GetRecording(ctx context.Context, id model.RecordingID) (model.Recording, error)

	// GetSingers returns every known singer, keyed by id.
	GetSingers(ctx context.Context) (map[model.SingerID]model.Singer, error)

	// GetDurationMS returns the maximum end timestamp across a
	// recording's segments. It returns ErrNotFound if the recording has no
	// segments.
	GetDurationMS(ctx context.Context, id model.RecordingID) (int64, error)

	// NearestSegments returns up to limit segments within maxDistance of
	// query under L2 distance, ordered ascending by distance. Ties are
	// broken by the implementation.
	NearestSegments(ctx context.Context, query []float32, maxDistance float64, limit int) ([]model.NearestHit, error)
}
