// Package memstore is an in-memory implementation of fingerprint/store.Store
// used by ingest and discovery tests, and as a reference implementation of
// the interface's ordering and precondition semantics.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/soundtrace/fingerprint/model"
	"github.com/cwbudde/soundtrace/fingerprint/store"
)

type segmentRow struct {
	recordingID model.RecordingID
	index       int
	vector      []float32
	startMS     int64
	endMS       int64
}

// Store is a concurrency-safe in-memory Store.
type Store struct {
	mu       sync.RWMutex
	nextID   model.RecordingID
	byID     map[model.RecordingID]store.NewRecording
	byPath   map[string]model.RecordingID
	singers  map[model.SingerID]model.Singer
	segments map[model.RecordingID][]segmentRow
}

// New returns an empty Store seeded with the given singer lookup.
func New(singers map[model.SingerID]model.Singer) *Store {
	if singers == nil {
		singers = make(map[model.SingerID]model.Singer)
	}
	return &Store{
		byID:     make(map[model.RecordingID]store.NewRecording),
		byPath:   make(map[string]model.RecordingID),
		singers:  singers,
		segments: make(map[model.RecordingID][]segmentRow),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InsertRecording(_ context.Context, rec store.NewRecording) (model.RecordingID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.byID[id] = rec
	if rec.Path != nil {
		s.byPath[*rec.Path] = id
	}
	return id, nil
}

func (s *Store) BulkInsertSegments(_ context.Context, recordingID model.RecordingID, sampleRateHz int, cfg model.SpectrogramConfig, frames [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.segments[recordingID]) > 0 {
		return store.ErrSegmentsAlreadyExist
	}

	rows := make([]segmentRow, len(frames))
	for i, frame := range frames {
		rows[i] = segmentRow{
			recordingID: recordingID,
			index:       i,
			vector:      frame,
			startMS:     cfg.StartMS(i, sampleRateHz),
			endMS:       cfg.EndMS(i, sampleRateHz),
		}
	}
	s.segments[recordingID] = rows
	return nil
}

func (s *Store) RecordingExistsByPath(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPath[path]
	return ok, nil
}

func (s *Store) GetRecording(_ context.Context, id model.RecordingID) (model.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return model.Recording{}, store.ErrNotFound
	}

	var performed *time.Time
	if rec.Performed != nil {
		t := time.Unix(*rec.Performed, 0).UTC()
		performed = &t
	}

	return model.Recording{
		ID:        id,
		Title:     rec.Title,
		SingerID:  rec.SingerID,
		Performed: performed,
		Path:      rec.Path,
	}, nil
}

func (s *Store) GetSingers(_ context.Context) (map[model.SingerID]model.Singer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.SingerID]model.Singer, len(s.singers))
	for id, singer := range s.singers {
		out[id] = singer
	}
	return out, nil
}

func (s *Store) GetDurationMS(_ context.Context, id model.RecordingID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.segments[id]
	if !ok || len(rows) == 0 {
		return 0, store.ErrNotFound
	}

	var maxEnd int64
	for _, row := range rows {
		if row.endMS > maxEnd {
			maxEnd = row.endMS
		}
	}
	return maxEnd, nil
}

func (s *Store) NearestSegments(_ context.Context, query []float32, maxDistance float64, limit int) ([]model.NearestHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []model.NearestHit
	for _, rows := range s.segments {
		for _, row := range rows {
			d := l2Distance(query, row.vector)
			if d < maxDistance {
				hits = append(hits, model.NearestHit{
					RecordingID:  row.recordingID,
					SegmentIndex: row.index,
					Distance:     d,
				})
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
