package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"anime-streamer/internal/catalog"
	"anime-streamer/pkg/types"
)

type Repo struct{ DB *DB }

func NewRepo(db *DB) *Repo { return &Repo{DB: db} }

// RefreshSeries merges fetched metadata into what is stored, keeping the
// tracked flag, the stored episodes and the later airing hint.
func (r *Repo) RefreshSeries(ctx context.Context, fetched []types.SeriesMetadata) ([]types.SeriesMetadata, error) {
	existing, err := r.Series(ctx)
	if err != nil {
		return nil, err
	}
	merged := catalog.MergeRefresh(fetched, existing)
	tx, err := r.DB.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().UTC()
	for _, s := range merged {
		data, err := encodeSeries(s)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, r.DB.rebind(`
INSERT INTO series (id, data, tracked, updated_at) VALUES (?,?,?,?)
ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data, updated_at=EXCLUDED.updated_at`),
			s.ID, data, boolInt(s.Tracked), now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Series lists every stored series with its local state.
func (r *Repo) Series(ctx context.Context) ([]types.SeriesMetadata, error) {
	return r.listSeries(ctx, `SELECT id, data, tracked FROM series ORDER BY id`)
}

func (r *Repo) TrackedSeries(ctx context.Context) ([]types.SeriesMetadata, error) {
	return r.listSeries(ctx, `SELECT id, data, tracked FROM series WHERE tracked = 1 ORDER BY id`)
}

func (r *Repo) listSeries(ctx context.Context, q string, args ...any) ([]types.SeriesMetadata, error) {
	rows, err := r.DB.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []types.SeriesMetadata
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	eps, err := r.allEpisodes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].EpisodeList = eps[out[i].ID]
	}
	return out, nil
}

func (r *Repo) GetSeries(ctx context.Context, id int) (types.SeriesMetadata, bool, error) {
	row := r.DB.queryRow(ctx, `SELECT id, data, tracked FROM series WHERE id = ?`, id)
	s, err := scanSeries(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.SeriesMetadata{}, false, nil
		}
		return types.SeriesMetadata{}, false, err
	}
	if s.EpisodeList, err = r.Episodes(ctx, id); err != nil {
		return types.SeriesMetadata{}, false, err
	}
	return s, true, nil
}

// SetTracked flips the tracked flag of a stored series.
func (r *Repo) SetTracked(ctx context.Context, id int, tracked bool) error {
	res, err := r.DB.exec(ctx, `UPDATE series SET tracked = ?, updated_at = ? WHERE id = ?`,
		boolInt(tracked), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSeries stores one series as-is, including its tracked flag. Episodes
// in EpisodeList are upserted.
func (r *Repo) SaveSeries(ctx context.Context, s types.SeriesMetadata) error {
	data, err := encodeSeries(s)
	if err != nil {
		return err
	}
	if _, err := r.DB.exec(ctx, `
INSERT INTO series (id, data, tracked, updated_at) VALUES (?,?,?,?)
ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data, tracked=EXCLUDED.tracked, updated_at=EXCLUDED.updated_at`,
		s.ID, data, boolInt(s.Tracked), time.Now().UTC()); err != nil {
		return err
	}
	for _, ep := range s.EpisodeList {
		ep.SeriesID = s.ID
		if _, err := r.UpsertEpisode(ctx, ep); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSeries(row scanner) (types.SeriesMetadata, error) {
	var (
		id      int
		data    string
		tracked int
	)
	if err := row.Scan(&id, &data, &tracked); err != nil {
		return types.SeriesMetadata{}, err
	}
	var s types.SeriesMetadata
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return types.SeriesMetadata{}, err
	}
	s.ID = id
	s.Tracked = tracked != 0
	return s, nil
}

// encodeSeries stores catalog fields only; local state has its own columns.
func encodeSeries(s types.SeriesMetadata) (string, error) {
	s.Tracked = false
	s.EpisodeList = nil
	b, err := json.Marshal(s)
	return string(b), err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
