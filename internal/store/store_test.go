package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anime-streamer/pkg/types"
)

func openTest(t *testing.T) *Repo {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepo(db)
}

func intp(n int) *int { return &n }

func TestRebind(t *testing.T) {
	pg := &DB{postgres: true}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))
	lite := &DB{}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestRefreshSeriesKeepsLocalState(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)

	_, err := r.RefreshSeries(ctx, []types.SeriesMetadata{
		{ID: 1, Title: types.Title{Romaji: "Dandadan"}, Episodes: intp(12), NextAiringEpisode: &types.AiringHint{Episode: 6}},
		{ID: 2, Title: types.Title{Romaji: "Ao no Hako"}},
	})
	require.NoError(t, err)
	require.NoError(t, r.SetTracked(ctx, 1, true))
	_, err = r.UpsertEpisode(ctx, types.EpisodeRecord{SeriesID: 1, Number: 1, Locator: "magnet:?one", ContentID: "aaa"})
	require.NoError(t, err)

	merged, err := r.RefreshSeries(ctx, []types.SeriesMetadata{
		{ID: 1, Title: types.Title{Romaji: "Dandadan (new)"}, Episodes: intp(12), NextAiringEpisode: &types.AiringHint{Episode: 5}},
	})
	require.NoError(t, err)
	require.Len(t, merged, 2)

	s, ok, err := r.GetSeries(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dandadan (new)", s.Title.Romaji)
	assert.True(t, s.Tracked)
	assert.Equal(t, 6, s.NextAiringEpisode.Episode)
	require.Len(t, s.EpisodeList, 1)
	assert.Equal(t, "magnet:?one", s.EpisodeList[0].Locator)

	tracked, err := r.TrackedSeries(ctx)
	require.NoError(t, err)
	require.Len(t, tracked, 1)
	assert.Equal(t, 1, tracked[0].ID)
	assert.Len(t, tracked[0].EpisodeList, 1)

	all, err := r.Series(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetTrackedUnknown(t *testing.T) {
	assert.ErrorIs(t, openTest(t).SetTracked(context.Background(), 99, true), ErrNotFound)
}

func TestUpsertEpisodeNeverOverwritesLocator(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)

	kept, err := r.UpsertEpisode(ctx, types.EpisodeRecord{SeriesID: 1, Number: 3, Locator: "first"})
	require.NoError(t, err)
	assert.True(t, kept)

	kept, err = r.UpsertEpisode(ctx, types.EpisodeRecord{SeriesID: 1, Number: 3, Locator: "second", ContentID: "bbb"})
	require.NoError(t, err)
	assert.False(t, kept)

	eps, err := r.Episodes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "first", eps[0].Locator)
	assert.Equal(t, "bbb", eps[0].ContentID)
	assert.Equal(t, types.Unwatched, eps[0].WatchState)
}

func TestWatchState(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)

	require.NoError(t, r.SetWatchState(ctx, 1, 4, types.Watching))
	_, err := r.UpsertEpisode(ctx, types.EpisodeRecord{SeriesID: 1, Number: 4, Locator: "later"})
	require.NoError(t, err)
	require.NoError(t, r.SetWatchState(ctx, 1, 4, types.Watched))
	assert.Error(t, r.SetWatchState(ctx, 1, 4, "rewatching"))

	eps, err := r.Episodes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "later", eps[0].Locator)
	assert.Equal(t, types.Watched, eps[0].WatchState)
}

func TestContentMembership(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)

	require.NoError(t, r.SaveContent(ctx, "aaa", "magnet:?a", "A"))
	require.NoError(t, r.SaveContent(ctx, "bbb", "magnet:?b", "B"))
	require.NoError(t, r.SaveContent(ctx, "aaa", "magnet:?a", "A renamed"))

	rows, err := r.Content(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, r.DeleteContent(ctx, "bbb"))
	locs, err := r.ContentLocators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"magnet:?a"}, locs)
}

func TestSearchCache(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)

	_, ok, err := r.GetSearchCache(ctx, "q", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	cands := []types.Candidate{{Name: "[Group] Show - 01 (720p)", Locator: "magnet:?x", Seeders: 10}}
	require.NoError(t, r.PutSearchCache(ctx, "q", cands))

	got, ok, err := r.GetSearchCache(ctx, "q", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cands, got)
}
