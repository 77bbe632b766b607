package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anime-streamer/pkg/types"
)

const pageJSON = `{"data":{"Page":{"media":[
 {"id":171018,"idMal":57334,"title":{"romaji":"Dandadan","english":"DAN DA DAN","native":"ダンダダン"},
  "format":"TV","status":"RELEASING","description":null,"season":"FALL","seasonYear":2024,
  "episodes":12,"duration":24,"coverImage":{"large":"https://img/cover.jpg"},"genres":["Action"],
  "synonyms":["Dandadan"],"averageScore":85,"popularity":200000,
  "studios":{"edges":[{"node":{"name":"Science SARU"}}]},
  "nextAiringEpisode":{"airingAt":1730390400,"timeUntilAiring":3600,"episode":5},
  "siteUrl":"https://anilist.co/anime/171018"}
]}}}`

func TestSeasonPage(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(pageJSON))
	}))
	defer srv.Close()

	c := NewClient().WithEndpoint(srv.URL)
	got, err := c.SeasonPage(context.Background(), Fall, 2024, 2)
	require.NoError(t, err)

	vars := body["variables"].(map[string]any)
	assert.Equal(t, "FALL", vars["season"])
	assert.Equal(t, float64(2024), vars["seasonYear"])
	assert.Equal(t, float64(2), vars["page"])

	require.Len(t, got, 1)
	s := got[0]
	assert.Equal(t, 171018, s.ID)
	assert.Equal(t, "Dandadan", s.Title.Romaji)
	assert.Equal(t, []string{"Science SARU"}, s.Studios)
	assert.Equal(t, "https://img/cover.jpg", s.CoverImage)
	require.NotNil(t, s.Episodes)
	assert.Equal(t, 12, *s.Episodes)
	require.NotNil(t, s.NextAiringEpisode)
	assert.Equal(t, 5, s.NextAiringEpisode.Episode)
	assert.Empty(t, s.Description)
	assert.False(t, s.Tracked)
}

func TestSeasonPageGraphQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"Invalid season"}]}`))
	}))
	defer srv.Close()

	_, err := NewClient().WithEndpoint(srv.URL).SeasonPage(context.Background(), "NOPE", 2024, 1)
	assert.ErrorIs(t, err, ErrGraphQL)
}

func TestSeasonRetriesServerErrorsAndSkipsFailedPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(pageJSON))
	}))
	defer srv.Close()

	got := NewClient().WithEndpoint(srv.URL).WithAttempts(2).Season(context.Background(), Fall, 2024, 3)
	// the short first page ends pagination
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSeasonClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	got := NewClient().WithEndpoint(srv.URL).WithAttempts(3).Season(context.Background(), Fall, 2024, 2)
	assert.Empty(t, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSeasonOf(t *testing.T) {
	tests := []struct {
		month time.Month
		want  string
	}{
		{time.January, Winter}, {time.February, Winter}, {time.March, Spring}, {time.May, Spring},
		{time.June, Summer}, {time.August, Summer}, {time.September, Fall}, {time.November, Fall},
		{time.December, Winter},
	}
	for _, tt := range tests {
		s, y := SeasonOf(time.Date(2025, tt.month, 15, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, tt.want, s, tt.month.String())
		assert.Equal(t, 2025, y)
	}
	assert.True(t, ValidSeason(Fall))
	assert.False(t, ValidSeason("fall"))
}

func intp(n int) *int { return &n }

func TestMergeRefresh(t *testing.T) {
	existing := []types.SeriesMetadata{
		{
			ID: 1, Title: types.Title{Romaji: "Old Name"}, Tracked: true,
			NextAiringEpisode: &types.AiringHint{Episode: 6},
			EpisodeList: []types.EpisodeRecord{
				{Number: 1, Locator: "magnet:?one", ContentID: "aaa", WatchState: types.Watched},
				{Number: 2, Locator: "magnet:?two", ContentID: "bbb"},
			},
		},
		{ID: 2, Title: types.Title{Romaji: "Dropped From Season"}, Tracked: true},
	}
	fetched := []types.SeriesMetadata{
		{
			ID: 1, Title: types.Title{Romaji: "New Name"}, Episodes: intp(12),
			NextAiringEpisode: &types.AiringHint{Episode: 5},
			EpisodeList: []types.EpisodeRecord{
				{Number: 1, Locator: "magnet:?other"},
				{Number: 3, Locator: "magnet:?three"},
			},
		},
		{ID: 3, Title: types.Title{Romaji: "Brand New"}},
	}

	got := MergeRefresh(fetched, existing)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 3, 2}, []int{got[0].ID, got[1].ID, got[2].ID})

	s := got[0]
	assert.Equal(t, "New Name", s.Title.Romaji)
	assert.True(t, s.Tracked)
	assert.Equal(t, 6, s.NextAiringEpisode.Episode)
	require.Len(t, s.EpisodeList, 3)
	assert.Equal(t, "magnet:?one", s.EpisodeList[0].Locator)
	assert.Equal(t, "aaa", s.EpisodeList[0].ContentID)
	assert.Equal(t, types.Watched, s.EpisodeList[0].WatchState)
	assert.Equal(t, 3, s.EpisodeList[1].Number)
	assert.Equal(t, 2, s.EpisodeList[2].Number)

	assert.True(t, got[2].Tracked)
}

func TestLaterHint(t *testing.T) {
	five := &types.AiringHint{Episode: 5}
	six := &types.AiringHint{Episode: 6}
	assert.Same(t, six, laterHint(six, five))
	assert.Same(t, six, laterHint(five, six))
	assert.Same(t, five, laterHint(nil, five))
	assert.Same(t, five, laterHint(five, nil))
	assert.Nil(t, laterHint(nil, nil))
}

func TestApplyFilterAndSort(t *testing.T) {
	utc := time.UTC
	mon := time.Date(2024, 10, 14, 12, 0, 0, 0, utc).Unix() // Monday
	tue := time.Date(2024, 10, 15, 12, 0, 0, 0, utc).Unix()
	list := []types.SeriesMetadata{
		{ID: 1, Title: types.Title{Romaji: "Dandadan"}, Season: Fall, SeasonYear: 2024, AverageScore: 85, Popularity: 10, Episodes: intp(12),
			NextAiringEpisode: &types.AiringHint{AiringAt: mon, TimeUntilAiring: 300}},
		{ID: 2, Title: types.Title{Romaji: "Ao no Hako"}, Synonyms: []string{"Blue Box"}, Season: Fall, SeasonYear: 2024, AverageScore: 80, Popularity: 30, Episodes: intp(25),
			NextAiringEpisode: &types.AiringHint{AiringAt: tue, TimeUntilAiring: 100}},
		{ID: 3, Title: types.Title{Romaji: "Kusuriya no Hitorigoto"}, Season: Winter, SeasonYear: 2025, AverageScore: 90, Popularity: 20},
	}

	ids := func(in []types.SeriesMetadata) []int {
		var out []int
		for _, s := range in {
			out = append(out, s.ID)
		}
		return out
	}

	assert.Equal(t, []int{3, 2, 1}, ids(Apply(list, Filter{SortBy: SortAirDate})))
	assert.Equal(t, []int{3, 1, 2}, ids(Apply(list, Filter{SortBy: SortRating})))
	assert.Equal(t, []int{2, 3, 1}, ids(Apply(list, Filter{SortBy: SortPopularity})))
	assert.Equal(t, []int{2, 1, 3}, ids(Apply(list, Filter{SortBy: SortEpisodes})))
	assert.Equal(t, []int{2, 1, 3}, ids(Apply(list, Filter{SortBy: SortAlphabetical})))

	assert.Equal(t, []int{1, 2}, ids(Apply(list, Filter{SortBy: SortRating, Season: "fall", Year: 2024})))
	assert.Equal(t, []int{1}, ids(Apply(list, Filter{Weekday: "Monday", Location: utc})))
	assert.Equal(t, []int{2}, ids(Apply(list, Filter{Search: "blue box"})))
	assert.Equal(t, []int{3}, ids(Apply(list, Filter{Search: "kusuri"})))

	// input order is untouched
	assert.Equal(t, []int{1, 2, 3}, ids(list))
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 10, 14, 9, 0, 0, 0, time.UTC) // Monday
	airs := time.Date(2024, 10, 14, 15, 0, 0, 0, time.UTC).Unix()
	list := []types.SeriesMetadata{
		{ID: 1, Status: "RELEASING", Tracked: true, NextAiringEpisode: &types.AiringHint{AiringAt: airs}},
		{ID: 2, Status: "RELEASING", Tracked: false, NextAiringEpisode: &types.AiringHint{AiringAt: airs}},
		{ID: 3, Status: "FINISHED", Tracked: true, NextAiringEpisode: &types.AiringHint{AiringAt: airs}},
		{ID: 4, Status: "RELEASING", Tracked: true},
	}
	got := Today(list, now)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ID)
}

func TestParseYear(t *testing.T) {
	assert.Equal(t, 0, ParseYear("all"))
	assert.Equal(t, 0, ParseYear(""))
	assert.Equal(t, 2025, ParseYear("2025"))
	assert.Equal(t, 0, ParseYear("soon"))
}
