package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"anime-streamer/pkg/types"
)

type ContentRow struct {
	ID      string    `json:"id"`
	Locator string    `json:"locator"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"addedAt"`
}

func (r *Repo) SaveContent(ctx context.Context, id, locator, name string) error {
	_, err := r.DB.exec(ctx, `
INSERT INTO content (id, locator, name, added_at) VALUES (?,?,?,?)
ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`, id, locator, name, time.Now().UTC())
	return err
}

func (r *Repo) DeleteContent(ctx context.Context, id string) error {
	_, err := r.DB.exec(ctx, `DELETE FROM content WHERE id = ?`, id)
	return err
}

func (r *Repo) Content(ctx context.Context) ([]ContentRow, error) {
	rows, err := r.DB.query(ctx, `SELECT id, locator, name, added_at FROM content ORDER BY added_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentRow
	for rows.Next() {
		var c ContentRow
		if err := rows.Scan(&c.ID, &c.Locator, &c.Name, &c.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ContentLocators lists the locators to re-add at startup.
func (r *Repo) ContentLocators(ctx context.Context) ([]string, error) {
	rows, err := r.Content(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.Locator)
	}
	return out, nil
}

// GetSearchCache returns cached candidates for key if they are younger
// than maxAge.
func (r *Repo) GetSearchCache(ctx context.Context, key string, maxAge time.Duration) ([]types.Candidate, bool, error) {
	var (
		raw     string
		fetched time.Time
	)
	err := r.DB.queryRow(ctx, `SELECT candidates, fetched_at FROM search_cache WHERE cache_key = ?`, key).Scan(&raw, &fetched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if maxAge > 0 && time.Since(fetched) > maxAge {
		return nil, false, nil
	}
	var out []types.Candidate
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, nil
	}
	return out, true, nil
}

func (r *Repo) PutSearchCache(ctx context.Context, key string, cands []types.Candidate) error {
	raw, err := json.Marshal(cands)
	if err != nil {
		return err
	}
	_, err = r.DB.exec(ctx, `
INSERT INTO search_cache (cache_key, candidates, fetched_at) VALUES (?,?,?)
ON CONFLICT (cache_key) DO UPDATE SET candidates=EXCLUDED.candidates, fetched_at=EXCLUDED.fetched_at`,
		key, string(raw), time.Now().UTC())
	return err
}
