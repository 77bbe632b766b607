package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"anime-streamer/internal/catalog"
	"anime-streamer/internal/store"
	"anime-streamer/pkg/types"
)

// handleCatalog fetches the requested season (the current one by default),
// folds it into the stored list and returns the filtered view. A failed
// fetch still answers with whatever is stored.
func (h *Handlers) handleCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	season, year := catalog.SeasonOf(h.d.Now())
	if v := strings.ToUpper(strings.TrimSpace(q.Get("season"))); v != "" {
		if !catalog.ValidSeason(v) {
			http.Error(w, "season must be WINTER|SPRING|SUMMER|FALL", http.StatusBadRequest)
			return
		}
		season = v
	}
	if y := catalog.ParseYear(q.Get("year")); y > 0 {
		year = y
	}
	pages := h.d.Pages
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		pages = n
	}

	var list []types.SeriesMetadata
	if h.d.Catalog != nil {
		list = h.d.Catalog.Season(r.Context(), season, year, pages)
	}
	if h.d.Repo != nil {
		merged, err := h.d.Repo.RefreshSeries(r.Context(), list)
		if err != nil {
			log.Printf("[catalog] refresh store: %v", err)
		} else {
			list = merged
		}
	}

	out := catalog.Apply(list, catalog.Filter{
		SortBy:  catalog.SortBy(q.Get("sort")),
		Season:  season,
		Year:    year,
		Weekday: q.Get("weekday"),
		Search:  q.Get("search"),
	})
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleMerged(w http.ResponseWriter, r *http.Request) {
	if h.d.Merged == nil {
		writeJSON(w, http.StatusOK, []types.MergedCatalogEntry{})
		return
	}
	entries, metadata := h.d.Merged.Current(r.Context())
	if h.d.Repo != nil && len(metadata) > 0 {
		stored, err := h.d.Repo.RefreshSeries(r.Context(), metadata)
		if err != nil {
			log.Printf("[feed] refresh store: %v", err)
		} else {
			byID := make(map[int]types.SeriesMetadata, len(stored))
			for _, s := range stored {
				byID[s.ID] = s
			}
			for i := range entries {
				if entries[i].Metadata == nil {
					continue
				}
				if s, ok := byID[entries[i].Metadata.ID]; ok {
					entries[i].Metadata = &s
				}
			}
		}
	}
	if entries == nil {
		entries = []types.MergedCatalogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) handleToday(w http.ResponseWriter, r *http.Request) {
	list, err := h.d.Repo.Series(r.Context())
	if err != nil {
		log.Printf("[catalog] today: %v", err)
	}
	out := catalog.Today(list, h.d.Now())
	if out == nil {
		out = []types.SeriesMetadata{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleSeriesList(w http.ResponseWriter, r *http.Request) {
	var (
		list []types.SeriesMetadata
		err  error
	)
	if tracked, _ := strconv.ParseBool(r.URL.Query().Get("tracked")); tracked {
		list, err = h.d.Repo.TrackedSeries(r.Context())
	} else {
		list, err = h.d.Repo.Series(r.Context())
	}
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []types.SeriesMetadata{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) handleSeriesGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.storedSeries(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type resolveResp struct {
	SeriesID int                   `json:"seriesId"`
	Episodes []types.EpisodeRecord `json:"episodes"`
}

// handleResolveAdHoc resolves the posted series without storing anything.
func (h *Handlers) handleResolveAdHoc(w http.ResponseWriter, r *http.Request) {
	var s types.SeriesMetadata
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(s.TitleVariants()) == 0 {
		http.Error(w, "series needs at least one title", http.StatusBadRequest)
		return
	}
	eps, err := h.d.Resolver.Resolve(r.Context(), s)
	if err != nil {
		log.Printf("[resolve] %d %q: %v", s.ID, s.DisplayTitle(), err)
	}
	if eps == nil {
		eps = []types.EpisodeRecord{}
	}
	writeJSON(w, http.StatusOK, resolveResp{SeriesID: s.ID, Episodes: eps})
}

// handleResolveStored resolves a stored series and returns only the
// episodes that were newly committed.
func (h *Handlers) handleResolveStored(w http.ResponseWriter, r *http.Request) {
	s, ok := h.storedSeries(w, r)
	if !ok {
		return
	}
	eps, err := h.d.Tracker.ResolveSeries(r.Context(), s)
	if err != nil {
		log.Printf("[resolve] %d %q: %v", s.ID, s.DisplayTitle(), err)
	}
	if eps == nil {
		eps = []types.EpisodeRecord{}
	}
	writeJSON(w, http.StatusOK, resolveResp{SeriesID: s.ID, Episodes: eps})
}

func (h *Handlers) handleTrack(tracked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := intParam(w, r, "id")
		if !ok {
			return
		}
		err := h.d.Repo.SetTracked(r.Context(), id, tracked)
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "unknown series", http.StatusNotFound)
			return
		case err != nil:
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		log.Printf("[track] series %d tracked=%v", id, tracked)
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "tracked": tracked})
	}
}

func (h *Handlers) handleWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	n, ok := intParam(w, r, "n")
	if !ok {
		return
	}
	var in struct {
		State types.WatchState `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if !in.State.Valid() {
		http.Error(w, "state must be unwatched|watching|watched", http.StatusBadRequest)
		return
	}
	if err := h.d.Repo.SetWatchState(r.Context(), id, n, in.State); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) storedSeries(w http.ResponseWriter, r *http.Request) (types.SeriesMetadata, bool) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return types.SeriesMetadata{}, false
	}
	s, found, err := h.d.Repo.GetSeries(r.Context(), id)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return s, false
	}
	if !found {
		http.Error(w, "unknown series", http.StatusNotFound)
		return s, false
	}
	return s, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 1 {
		http.Error(w, "bad "+name, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
