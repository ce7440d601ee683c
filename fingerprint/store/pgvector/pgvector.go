// Package pgvector implements fingerprint/store.Store against Postgres with
// the pgvector extension, using pgx for the connection pool and
// pgvector-go for the vector column type. It is the idiomatic-Go analogue
// of the original implementation's sqlx::Pool<Postgres> + pgvector::Vector
// combination: bulk segment insertion goes through pgx's CopyFrom, the Go
// equivalent of a streaming COPY FROM STDIN.
package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/cwbudde/soundtrace/fingerprint/model"
	"github.com/cwbudde/soundtrace/fingerprint/store"
)

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Store implements store.Store against a pgvector-enabled Postgres
// database. The schema is external to this package: it assumes `songs`,
// `singers`, and `segments` tables matching the original schema's column
// names, with `segments.vec` typed `vector`.
type Store struct {
	pool *pgxpool.Pool
}

// Connect dials url (a standard Postgres connection string) and registers
// the pgvector type on every pooled connection.
func Connect(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("pgvector: parse config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgv.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ store.Store = (*Store)(nil)

func (s *Store) InsertRecording(ctx context.Context, rec store.NewRecording) (model.RecordingID, error) {
	var id model.RecordingID
	err := s.pool.QueryRow(ctx,
		`insert into songs (title, singer_id, date_first_sung, local_path)
		 values ($1, $2, to_timestamp($3), $4)
		 returning id`,
		rec.Title, rec.SingerID, unixOrNil(rec.Performed), rec.Path,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("pgvector: insert recording: %w", err)
	}
	return id, nil
}

func unixOrNil(sec *int64) any {
	if sec == nil {
		return nil
	}
	return *sec
}

func (s *Store) BulkInsertSegments(ctx context.Context, recordingID model.RecordingID, sampleRateHz int, cfg model.SpectrogramConfig, frames [][]float32) error {
	var existing int
	if err := s.pool.QueryRow(ctx,
		`select count(*) from segments where song_id = $1`, recordingID,
	).Scan(&existing); err != nil {
		return fmt.Errorf("pgvector: check existing segments: %w", err)
	}
	if existing > 0 {
		return store.ErrSegmentsAlreadyExist
	}

	rows := make([][]any, len(frames))
	for i, frame := range frames {
		rows[i] = []any{
			int64(recordingID),
			i,
			pgv.NewVector(frame),
			cfg.StartMS(i, sampleRateHz),
			cfg.EndMS(i, sampleRateHz),
		}
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"segments"},
		[]string{"song_id", "segment_index", "vec", "start_ts_ms", "end_ts_ms"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("pgvector: bulk insert segments: %w", err)
	}
	if int(n) != len(frames) {
		return fmt.Errorf("pgvector: bulk insert segments: copied %d rows, want %d", n, len(frames))
	}
	return nil
}

func (s *Store) RecordingExistsByPath(ctx context.Context, path string) (bool, error) {
	var dummy int
	err := s.pool.QueryRow(ctx, `select 1 from songs where local_path = $1`, path).Scan(&dummy)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pgvector: check existing path: %w", err)
	}
	return true, nil
}

func (s *Store) GetRecording(ctx context.Context, id model.RecordingID) (model.Recording, error) {
	var (
		rec       model.Recording
		performed *int64
	)
	rec.ID = id

	err := s.pool.QueryRow(ctx,
		`select title, singer_id, extract(epoch from date_first_sung)::bigint, local_path
		 from songs where id = $1`, id,
	).Scan(&rec.Title, &rec.SingerID, &performed, &rec.Path)
	if err == pgx.ErrNoRows {
		return model.Recording{}, store.ErrNotFound
	}
	if err != nil {
		return model.Recording{}, fmt.Errorf("pgvector: get recording: %w", err)
	}

	if performed != nil {
		t := unixToTime(*performed)
		rec.Performed = &t
	}
	return rec, nil
}

func (s *Store) GetSingers(ctx context.Context) (map[model.SingerID]model.Singer, error) {
	rows, err := s.pool.Query(ctx, `select id, s_name from singers`)
	if err != nil {
		return nil, fmt.Errorf("pgvector: get singers: %w", err)
	}
	defer rows.Close()

	singers := make(map[model.SingerID]model.Singer)
	for rows.Next() {
		var singer model.Singer
		if err := rows.Scan(&singer.ID, &singer.Name); err != nil {
			return nil, fmt.Errorf("pgvector: scan singer: %w", err)
		}
		singers[singer.ID] = singer
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: iterate singers: %w", err)
	}
	return singers, nil
}

func (s *Store) GetDurationMS(ctx context.Context, id model.RecordingID) (int64, error) {
	var duration *int64
	err := s.pool.QueryRow(ctx,
		`select max(end_ts_ms) from segments where song_id = $1`, id,
	).Scan(&duration)
	if err != nil {
		return 0, fmt.Errorf("pgvector: get duration: %w", err)
	}
	if duration == nil {
		return 0, store.ErrNotFound
	}
	return *duration, nil
}

func (s *Store) NearestSegments(ctx context.Context, query []float32, maxDistance float64, limit int) ([]model.NearestHit, error) {
	vec := pgv.NewVector(query)

	rows, err := s.pool.Query(ctx,
		`select song_id, segment_index, vec <-> $1
		 from segments
		 where vec <-> $1 < $2
		 order by vec <-> $1
		 limit $3`,
		vec, maxDistance, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pgvector: nearest segments: %w", err)
	}
	defer rows.Close()

	var hits []model.NearestHit
	for rows.Next() {
		var hit model.NearestHit
		if err := rows.Scan(&hit.RecordingID, &hit.SegmentIndex, &hit.Distance); err != nil {
			return nil, fmt.Errorf("pgvector: scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: iterate hits: %w", err)
	}
	return hits, nil
}
