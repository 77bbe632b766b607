package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anime-streamer/internal/config"
	"anime-streamer/pkg/types"
)

const rss = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>releases</title>
<item><title>[SubsPlease] Dandadan - 05 (720p) [A1B2C3D4].mkv</title><link>magnet:?xt=urn:btih:aaa</link></item>
<item><title>[SubsPlease] Sono Bisque Doll wa Koi wo Suru - 14 (720p) [FFEE0011].mkv</title><link>magnet:?xt=urn:btih:bbb</link></item>
<item><title>Batch release without brackets</title><link>magnet:?xt=urn:btih:ccc</link></item>
<item><title>[SubsPlease] Dandadan - 04 (720p) [99887766].mkv</title><link>magnet:?xt=urn:btih:ddd</link></item>
<item><title>[Other] Dandadan - 05 (720p) [00000000].mkv</title><link>magnet:?xt=urn:btih:eee</link></item>
</channel></rss>`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer srv.Close()

	got, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "[SubsPlease] Dandadan - 05 (720p) [A1B2C3D4].mkv", got[0].Title)
	assert.Equal(t, "magnet:?xt=urn:btih:aaa", got[0].Link)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestParseTitle(t *testing.T) {
	name, ep, ok := ParseTitle("[SubsPlease] Ao no Hako - 07 (1080p) [ABCD].mkv")
	require.True(t, ok)
	assert.Equal(t, "Ao no Hako", name)
	assert.Equal(t, 7, ep)

	_, _, ok = ParseTitle("Ao no Hako - 07")
	assert.False(t, ok)
}

func TestParseGroupsAndDedupes(t *testing.T) {
	entries := []RawEntry{
		{Title: "[SubsPlease] Dandadan - 05 (720p)", Link: "first"},
		{Title: "[SubsPlease] Ao no Hako - 01 (720p)", Link: "ao"},
		{Title: "not a release", Link: "x"},
		{Title: "[SubsPlease] Dandadan - 04 (720p)", Link: "four"},
		{Title: "[Other] Dandadan - 05 (720p)", Link: "second"},
	}
	got := Parse(entries, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "Dandadan", got[0].Name)
	assert.Equal(t, []types.FeedEpisode{{Number: 5, Locator: "first"}, {Number: 4, Locator: "four"}}, got[0].Episodes)
	assert.Equal(t, "Ao no Hako", got[1].Name)
}

func TestParseAppliesOverrideToEveryEpisode(t *testing.T) {
	entries := []RawEntry{
		{Title: "[SubsPlease] Sono Bisque Doll wa Koi wo Suru - 14 (720p)", Link: "a"},
		{Title: "[SubsPlease] Sono Bisque Doll wa Koi wo Suru - 13 (720p)", Link: "b"},
		{Title: "[SubsPlease] Sono Bisque Doll wa Koi wo Suru - 05 (720p)", Link: "c"},
		{Title: "[SubsPlease] Dandadan - 14 (720p)", Link: "d"},
	}
	got := Parse(entries, []config.NumberingOverride{{Contains: "Bisque", Offset: -12}})
	require.Len(t, got, 2)
	assert.Equal(t, []types.FeedEpisode{{Number: 2, Locator: "a"}, {Number: 1, Locator: "b"}}, got[0].Episodes)
	assert.Equal(t, 14, got[1].Episodes[0].Number)
}

func meta(id int, romaji string, synonyms ...string) types.SeriesMetadata {
	return types.SeriesMetadata{ID: id, Title: types.Title{Romaji: romaji}, Synonyms: synonyms}
}

func TestMerge(t *testing.T) {
	buckets := []types.FeedBucket{
		{Name: "Dandadan", Episodes: []types.FeedEpisode{{Number: 5, Locator: "a"}}},
		{Name: "Something Unrelated", Episodes: []types.FeedEpisode{{Number: 1, Locator: "b"}}},
		{Name: "Ao no Hako", Episodes: []types.FeedEpisode{{Number: 2, Locator: "c"}}},
	}
	metadata := []types.SeriesMetadata{
		meta(1, "Dandadan"),
		meta(2, "Blue Box", "Ao no Hako"),
		meta(3, "Completely Different Show"),
	}
	got := Merge(metadata, buckets, 0.7)
	require.Len(t, got, 3)

	require.NotNil(t, got[0].Metadata)
	assert.Equal(t, 1, got[0].Metadata.ID)
	assert.Equal(t, 1.0, got[0].MatchedConfidence)
	assert.Equal(t, "Dandadan", got[0].Key)

	assert.Nil(t, got[1].Metadata)
	assert.Equal(t, "Something Unrelated", got[1].Key)
	assert.Zero(t, got[1].MatchedConfidence)

	require.NotNil(t, got[2].Metadata)
	assert.Equal(t, 2, got[2].Metadata.ID)
	assert.Equal(t, []types.FeedEpisode{{Number: 2, Locator: "c"}}, got[2].Episodes)
}

func TestMergeFirstComeExclusivity(t *testing.T) {
	buckets := []types.FeedBucket{{Name: "Dandadan"}}
	metadata := []types.SeriesMetadata{meta(10, "Dandadan"), meta(20, "Dandadan")}

	got := Merge(metadata, buckets, 0.7)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Metadata)
	assert.Equal(t, 10, got[0].Metadata.ID)
}

func TestMergeDuplicateIDMergesOnce(t *testing.T) {
	buckets := []types.FeedBucket{{Name: "Dandadan"}, {Name: "Dan Da Dan"}}
	metadata := []types.SeriesMetadata{meta(10, "Dandadan"), meta(10, "Dan Da Dan")}

	got := Merge(metadata, buckets, 0.7)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Metadata)
	assert.Nil(t, got[1].Metadata)
}

func TestMergeIsIdempotent(t *testing.T) {
	buckets := []types.FeedBucket{{Name: "Dandadan"}, {Name: "Other"}}
	metadata := []types.SeriesMetadata{meta(1, "Dandadan")}
	assert.Equal(t, Merge(metadata, buckets, 0.7), Merge(metadata, buckets, 0.7))
}

type stubCatalog struct{ list []types.SeriesMetadata }

func (s stubCatalog) CurrentSeason(context.Context, time.Time, int) []types.SeriesMetadata {
	return s.list
}

type stubFeed struct {
	entries []RawEntry
	err     error
}

func (s stubFeed) Fetch(context.Context, string) ([]RawEntry, error) { return s.entries, s.err }

func TestAggregatorCurrent(t *testing.T) {
	a := NewAggregator(
		stubCatalog{list: []types.SeriesMetadata{meta(1, "Dandadan")}},
		stubFeed{entries: []RawEntry{{Title: "[SubsPlease] Dandadan - 05 (720p)", Link: "x"}}},
	)
	a.Threshold = 0.7
	merged, list := a.Current(context.Background())
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Metadata)
	assert.Len(t, list, 1)
}

func TestAggregatorFeedFailureIsEmpty(t *testing.T) {
	a := NewAggregator(
		stubCatalog{list: []types.SeriesMetadata{meta(1, "Dandadan")}},
		stubFeed{err: errors.New("down")},
	)
	merged, list := a.Current(context.Background())
	assert.Empty(t, merged)
	assert.Len(t, list, 1)
}
