package store

import (
	"context"
	"fmt"
	"time"

	"anime-streamer/pkg/types"
)

// UpsertEpisode records ep. A locator already stored for the episode is
// never replaced; the content id and release only fill in when empty.
// It reports whether ep's locator is the one now stored.
func (r *Repo) UpsertEpisode(ctx context.Context, ep types.EpisodeRecord) (bool, error) {
	state := ep.WatchState
	if !state.Valid() {
		state = types.Unwatched
	}
	_, err := r.DB.exec(ctx, `
INSERT INTO episodes (series_id, number, locator, content_id, release_name, watch_state, updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT (series_id, number) DO UPDATE SET
    locator      = CASE WHEN episodes.locator = '' THEN EXCLUDED.locator ELSE episodes.locator END,
    content_id   = CASE WHEN episodes.content_id = '' THEN EXCLUDED.content_id ELSE episodes.content_id END,
    release_name = CASE WHEN episodes.release_name = '' THEN EXCLUDED.release_name ELSE episodes.release_name END,
    updated_at   = EXCLUDED.updated_at`,
		ep.SeriesID, ep.Number, ep.Locator, ep.ContentID, ep.Release, string(state), time.Now().UTC())
	if err != nil {
		return false, err
	}
	var stored string
	if err := r.DB.queryRow(ctx, `SELECT locator FROM episodes WHERE series_id = ? AND number = ?`,
		ep.SeriesID, ep.Number).Scan(&stored); err != nil {
		return false, err
	}
	return stored == ep.Locator, nil
}

// SetWatchState records the watch state, creating the episode row if the
// episode is not resolved yet.
func (r *Repo) SetWatchState(ctx context.Context, seriesID, number int, state types.WatchState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid watch state %q", state)
	}
	_, err := r.DB.exec(ctx, `
INSERT INTO episodes (series_id, number, watch_state, updated_at) VALUES (?,?,?,?)
ON CONFLICT (series_id, number) DO UPDATE SET watch_state=EXCLUDED.watch_state, updated_at=EXCLUDED.updated_at`,
		seriesID, number, string(state), time.Now().UTC())
	return err
}

func (r *Repo) Episodes(ctx context.Context, seriesID int) ([]types.EpisodeRecord, error) {
	rows, err := r.DB.query(ctx, `
SELECT series_id, number, locator, content_id, release_name, watch_state
FROM episodes WHERE series_id = ? ORDER BY number`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.EpisodeRecord
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (r *Repo) allEpisodes(ctx context.Context) (map[int][]types.EpisodeRecord, error) {
	rows, err := r.DB.query(ctx, `
SELECT series_id, number, locator, content_id, release_name, watch_state
FROM episodes ORDER BY series_id, number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int][]types.EpisodeRecord{}
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out[ep.SeriesID] = append(out[ep.SeriesID], ep)
	}
	return out, rows.Err()
}

func scanEpisode(row scanner) (types.EpisodeRecord, error) {
	var (
		ep    types.EpisodeRecord
		state string
	)
	if err := row.Scan(&ep.SeriesID, &ep.Number, &ep.Locator, &ep.ContentID, &ep.Release, &state); err != nil {
		return ep, err
	}
	ep.WatchState = types.WatchState(state)
	return ep, nil
}
