package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anime-streamer/internal/events"
	"anime-streamer/internal/store"
	"anime-streamer/internal/stream"
	"anime-streamer/internal/subtitles"
	"anime-streamer/internal/torrentx"
	"anime-streamer/pkg/types"
)

type fakeRepo struct {
	series  map[int]types.SeriesMetadata
	watched map[[2]int]types.WatchState
}

func newFakeRepo(list ...types.SeriesMetadata) *fakeRepo {
	r := &fakeRepo{series: map[int]types.SeriesMetadata{}, watched: map[[2]int]types.WatchState{}}
	for _, s := range list {
		r.series[s.ID] = s
	}
	return r
}

func (r *fakeRepo) RefreshSeries(_ context.Context, fetched []types.SeriesMetadata) ([]types.SeriesMetadata, error) {
	for _, s := range fetched {
		if prev, ok := r.series[s.ID]; ok {
			s.Tracked = prev.Tracked
		}
		r.series[s.ID] = s
	}
	return r.Series(context.Background())
}

func (r *fakeRepo) Series(context.Context) ([]types.SeriesMetadata, error) {
	var out []types.SeriesMetadata
	for _, s := range r.series {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRepo) TrackedSeries(ctx context.Context) ([]types.SeriesMetadata, error) {
	var out []types.SeriesMetadata
	for _, s := range r.series {
		if s.Tracked {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetSeries(_ context.Context, id int) (types.SeriesMetadata, bool, error) {
	s, ok := r.series[id]
	return s, ok, nil
}

func (r *fakeRepo) SetTracked(_ context.Context, id int, tracked bool) error {
	s, ok := r.series[id]
	if !ok {
		return store.ErrNotFound
	}
	s.Tracked = tracked
	r.series[id] = s
	return nil
}

func (r *fakeRepo) SetWatchState(_ context.Context, id, n int, st types.WatchState) error {
	r.watched[[2]int{id, n}] = st
	return nil
}

type fakeCatalog struct {
	season string
	year   int
	pages  int
	list   []types.SeriesMetadata
}

func (c *fakeCatalog) Season(_ context.Context, season string, year, pages int) []types.SeriesMetadata {
	c.season, c.year, c.pages = season, year, pages
	return c.list
}

type fakeContent struct {
	items map[string]types.ContentItem
	paths map[string]string
}

func (c *fakeContent) Add(_ context.Context, locator string) (torrentx.AddResult, error) {
	if _, _, err := torrentx.ParseLocator(locator); err != nil {
		return torrentx.AddResult{}, err
	}
	id := strings.ToLower(locator)
	if it, ok := c.items[id]; ok {
		return torrentx.AddResult{Item: it, AlreadyAdded: true}, nil
	}
	it := types.ContentItem{ID: id, Name: "Show - 01.mkv", Files: []types.FileEntry{{Index: 0, Name: "Show - 01.mkv", Length: 10}}}
	c.items[id] = it
	return torrentx.AddResult{Item: it}, nil
}

func (c *fakeContent) List() []types.ContentItem {
	out := []types.ContentItem{}
	for _, it := range c.items {
		out = append(out, it)
	}
	return out
}

func (c *fakeContent) Get(id string) (types.ContentItem, bool) {
	it, ok := c.items[id]
	return it, ok
}

func (c *fakeContent) Remove(id string) bool {
	_, ok := c.items[id]
	delete(c.items, id)
	return ok
}

func (c *fakeContent) FindMediaFile(id string) (string, bool) {
	p, ok := c.paths[id]
	return p, ok
}

type fakePlayer struct {
	ctx context.Context
}

func (p *fakePlayer) Play(ctx context.Context, id string) stream.Result {
	p.ctx = ctx
	res := stream.Result{SessionID: "s-1", ContentID: id}
	if id == "good" {
		u := "http://127.0.0.1:5555"
		res.URL = &u
	}
	return res
}

func (p *fakePlayer) Stop(id string) bool { return id == "s-1" }

type fakeResolver struct{ got types.SeriesMetadata }

func (r *fakeResolver) Resolve(_ context.Context, s types.SeriesMetadata) ([]types.EpisodeRecord, error) {
	r.got = s
	return []types.EpisodeRecord{{SeriesID: s.ID, Number: 1, Locator: "magnet:?xt=urn:btih:x"}}, nil
}

func (r *fakeResolver) ResolveSeries(ctx context.Context, s types.SeriesMetadata) ([]types.EpisodeRecord, error) {
	return r.Resolve(ctx, s)
}

const hash = "0123456789abcdef0123456789abcdef01234567"

func newTestHandlers(t *testing.T) (*Handlers, *fakeRepo, *fakeCatalog, *fakePlayer) {
	t.Helper()
	repo := newFakeRepo(types.SeriesMetadata{ID: 7, Title: types.Title{Romaji: "Stored"}, Season: "FALL", SeasonYear: 2024})
	cat := &fakeCatalog{}
	player := &fakePlayer{}
	res := &fakeResolver{}
	h := NewHandlers(Deps{
		Repo:     repo,
		Catalog:  cat,
		Resolver: res,
		Tracker:  res,
		Content:  &fakeContent{items: map[string]types.ContentItem{}, paths: map[string]string{hash: "/data/Show/Show - 01.mkv"}},
		Player:   player,
		Pages:    2,
		Now:      func() time.Time { return time.Date(2024, 10, 14, 9, 0, 0, 0, time.UTC) },
	})
	return h, repo, cat, player
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAddContent(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	routes := h.Routes()

	rec := do(t, routes, http.MethodPost, "/v1/content", `{"locator":"`+hash+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got addResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, hash, got.Identifier)
	assert.False(t, got.AlreadyAdded)
	assert.Len(t, got.Files, 1)

	rec = do(t, routes, http.MethodPost, "/v1/content", `{"locator":"`+hash+`"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.AlreadyAdded)

	rec = do(t, routes, http.MethodPost, "/v1/content", `{"locator":"not a locator"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, routes, http.MethodDelete, "/v1/content/"+hash, "")
	assert.JSONEq(t, `{"removed":true}`, rec.Body.String())
	rec = do(t, routes, http.MethodDelete, "/v1/content/"+hash, "")
	assert.JSONEq(t, `{"removed":false}`, rec.Body.String())
}

func TestMediaPath(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	routes := h.Routes()

	rec := do(t, routes, http.MethodGet, "/v1/content/"+hash+"/media-path", "")
	assert.JSONEq(t, `{"path":"/data/Show/Show - 01.mkv"}`, rec.Body.String())

	rec = do(t, routes, http.MethodGet, "/v1/content/ffff/media-path", "")
	assert.JSONEq(t, `{"path":null}`, rec.Body.String())
}

func TestPlayUsesSessionContext(t *testing.T) {
	h, _, _, player := newTestHandlers(t)
	routes := h.Routes()

	rec := do(t, routes, http.MethodPost, "/v1/content/good/play", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessionId":"s-1","contentId":"good","url":"http://127.0.0.1:5555"}`, rec.Body.String())
	assert.NoError(t, player.ctx.Err())

	rec = do(t, routes, http.MethodPost, "/v1/content/missing/play", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessionId":"s-1","contentId":"missing","url":null}`, rec.Body.String())

	rec = do(t, routes, http.MethodDelete, "/v1/playback/s-1", "")
	assert.JSONEq(t, `{"stopped":true}`, rec.Body.String())
}

func TestCatalogDefaultsToCurrentSeason(t *testing.T) {
	h, repo, cat, _ := newTestHandlers(t)
	cat.list = []types.SeriesMetadata{
		{ID: 1, Title: types.Title{Romaji: "Dandadan"}, Season: "FALL", SeasonYear: 2024, AverageScore: 85},
		{ID: 2, Title: types.Title{Romaji: "Ao no Hako"}, Season: "FALL", SeasonYear: 2024, AverageScore: 80},
	}
	repo.series[1] = types.SeriesMetadata{ID: 1, Tracked: true}
	routes := h.Routes()

	rec := do(t, routes, http.MethodGet, "/v1/catalog?sort=rating", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FALL", cat.season)
	assert.Equal(t, 2024, cat.year)
	assert.Equal(t, 2, cat.pages)

	var got []types.SeriesMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].ID)
	assert.True(t, got[0].Tracked)

	rec = do(t, routes, http.MethodGet, "/v1/catalog?season=winter&year=2025&page=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "WINTER", cat.season)
	assert.Equal(t, 2025, cat.year)
	assert.Equal(t, 1, cat.pages)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, routes, http.MethodGet, "/v1/catalog?season=monsoon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackAndWatch(t *testing.T) {
	h, repo, _, _ := newTestHandlers(t)
	routes := h.Routes()

	rec := do(t, routes, http.MethodPut, "/v1/series/7/track", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, repo.series[7].Tracked)

	rec = do(t, routes, http.MethodGet, "/v1/series?tracked=true", "")
	var got []types.SeriesMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)

	rec = do(t, routes, http.MethodDelete, "/v1/series/7/track", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, repo.series[7].Tracked)

	rec = do(t, routes, http.MethodPut, "/v1/series/99/track", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, routes, http.MethodPut, "/v1/series/7/episodes/3/watch", `{"state":"watched"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, types.Watched, repo.watched[[2]int{7, 3}])

	rec = do(t, routes, http.MethodPut, "/v1/series/7/episodes/3/watch", `{"state":"binged"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolve(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	routes := h.Routes()

	rec := do(t, routes, http.MethodPost, "/v1/series/resolve", `{"id":42,"title":{"romaji":"Dandadan"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got resolveResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 42, got.SeriesID)
	require.Len(t, got.Episodes, 1)

	rec = do(t, routes, http.MethodPost, "/v1/series/resolve", `{"id":42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, routes, http.MethodPost, "/v1/series/7/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7, got.SeriesID)

	rec = do(t, routes, http.MethodPost, "/v1/series/99/resolve", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflight(t *testing.T) {
	h, _, _, _ := newTestHandlers(t)
	rec := do(t, h.Routes(), http.MethodOptions, "/v1/content", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubtitleRoute(t *testing.T) {
	fs := afero.NewMemMapFs()
	ex := &subtitles.Extractor{Fs: fs, Dir: "/subs"}
	require.NoError(t, afero.WriteFile(fs, ex.Path(hash), []byte("WEBVTT\n\n"), 0o644))

	h := NewHandlers(Deps{Subtitles: ex})
	routes := h.Routes()

	rec := do(t, routes, http.MethodGet, "/subtitles/"+hash+".vtt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vtt; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "WEBVTT\n\n", rec.Body.String())

	rec = do(t, routes, http.MethodGet, "/subtitles/"+strings.Repeat("a", 40)+".vtt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, routes, http.MethodGet, "/subtitles/..%2Fetc.vtt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsStream(t *testing.T) {
	bus := events.New()
	defer bus.Close()
	srv := httptest.NewServer(NewHandlers(Deps{Events: bus}).Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 2000\n", line)

	bus.Publish(events.StreamReady, "s-1", map[string]any{"sessionId": "s-1", "url": nil})

	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, events.StreamReady, eventLine)

	var evt events.Event
	require.NoError(t, json.Unmarshal([]byte(dataLine), &evt))
	assert.Equal(t, "s-1", evt.Subject)
	assert.JSONEq(t, `{"sessionId":"s-1","url":null}`, string(evt.Payload))
}
