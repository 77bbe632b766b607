// Package httpapi is the JSON boundary over the catalog, resolution,
// content and playback components.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"anime-streamer/internal/events"
	"anime-streamer/internal/middleware"
	"anime-streamer/internal/stream"
	"anime-streamer/internal/torrentx"
	"anime-streamer/pkg/types"
)

type SeriesRepo interface {
	RefreshSeries(ctx context.Context, fetched []types.SeriesMetadata) ([]types.SeriesMetadata, error)
	Series(ctx context.Context) ([]types.SeriesMetadata, error)
	TrackedSeries(ctx context.Context) ([]types.SeriesMetadata, error)
	GetSeries(ctx context.Context, id int) (types.SeriesMetadata, bool, error)
	SetTracked(ctx context.Context, id int, tracked bool) error
	SetWatchState(ctx context.Context, seriesID, number int, state types.WatchState) error
}

type Catalog interface {
	Season(ctx context.Context, season string, year, pages int) []types.SeriesMetadata
}

type Merger interface {
	Current(ctx context.Context) ([]types.MergedCatalogEntry, []types.SeriesMetadata)
}

type Resolver interface {
	Resolve(ctx context.Context, s types.SeriesMetadata) ([]types.EpisodeRecord, error)
}

// SeriesResolver resolves a stored series and commits what it finds.
type SeriesResolver interface {
	ResolveSeries(ctx context.Context, s types.SeriesMetadata) ([]types.EpisodeRecord, error)
}

type Content interface {
	Add(ctx context.Context, locator string) (torrentx.AddResult, error)
	List() []types.ContentItem
	Get(id string) (types.ContentItem, bool)
	Remove(id string) bool
	FindMediaFile(id string) (string, bool)
}

type Player interface {
	Play(ctx context.Context, id string) stream.Result
	Stop(sessionID string) bool
}

type Subtitles interface {
	Open(id string) (afero.File, error)
}

type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

type Deps struct {
	Repo      SeriesRepo
	Catalog   Catalog
	Merged    Merger
	Resolver  Resolver
	Tracker   SeriesResolver
	Content   Content
	Player    Player
	Events    Subscriber
	Subtitles Subtitles
	// Sessions outlive the request that started them; they are bound to
	// this context instead. Defaults to context.Background().
	Sessions context.Context
	Pages    int
	Now      func() time.Time
}

type Handlers struct {
	d Deps
}

func NewHandlers(d Deps) *Handlers {
	if d.Sessions == nil {
		d.Sessions = context.Background()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Pages < 1 {
		d.Pages = 1
	}
	return &Handlers{d: d}
}

// Routes mounts every endpoint on a chi router wrapped in panic recovery
// and CORS.
func (h *Handlers) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover, middleware.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", h.handleCatalog)
		r.Get("/catalog/merged", h.handleMerged)
		r.Get("/catalog/today", h.handleToday)

		r.Get("/series", h.handleSeriesList)
		r.Post("/series/resolve", h.handleResolveAdHoc)
		r.Get("/series/{id}", h.handleSeriesGet)
		r.Post("/series/{id}/resolve", h.handleResolveStored)
		r.Put("/series/{id}/track", h.handleTrack(true))
		r.Delete("/series/{id}/track", h.handleTrack(false))
		r.Put("/series/{id}/episodes/{n}/watch", h.handleWatch)

		r.Post("/content", h.handleAdd)
		r.Get("/content", h.handleContentList)
		r.Get("/content/{id}", h.handleContentGet)
		r.Delete("/content/{id}", h.handleRemove)
		r.Get("/content/{id}/media-path", h.handleMediaPath)
		r.Post("/content/{id}/play", h.handlePlay)
		r.Delete("/playback/{session}", h.handleStop)

		r.Get("/events", h.handleEvents)
	})

	r.Get("/subtitles/{file}", h.handleSubtitle)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
