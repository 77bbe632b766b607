package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"anime-streamer/internal/torrentx"
	"anime-streamer/pkg/types"
)

type addResp struct {
	Identifier   string            `json:"identifier"`
	Name         string            `json:"name"`
	Files        []types.FileEntry `json:"files"`
	AlreadyAdded bool              `json:"alreadyAdded"`
}

func (h *Handlers) handleAdd(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Locator string `json:"locator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Locator) == "" {
		http.Error(w, "locator required", http.StatusBadRequest)
		return
	}
	res, err := h.d.Content.Add(r.Context(), in.Locator)
	if err != nil {
		if errors.Is(err, torrentx.ErrBadLocator) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "add content: "+err.Error(), http.StatusBadGateway)
		return
	}
	files := res.Item.Files
	if files == nil {
		files = []types.FileEntry{}
	}
	writeJSON(w, http.StatusOK, addResp{
		Identifier:   res.Item.ID,
		Name:         res.Item.Name,
		Files:        files,
		AlreadyAdded: res.AlreadyAdded,
	})
}

func (h *Handlers) handleContentList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Content.List())
}

func (h *Handlers) handleContentGet(w http.ResponseWriter, r *http.Request) {
	item, ok := h.d.Content.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "unknown content", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) handleRemove(w http.ResponseWriter, r *http.Request) {
	removed := h.d.Content.Remove(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handlers) handleMediaPath(w http.ResponseWriter, r *http.Request) {
	var out struct {
		Path *string `json:"path"`
	}
	if p, ok := h.d.Content.FindMediaFile(chi.URLParam(r, "id")); ok {
		out.Path = &p
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePlay always answers 200; an item that cannot be streamed yields a
// null url. The session is bound to the server lifetime, not the request.
func (h *Handlers) handlePlay(w http.ResponseWriter, r *http.Request) {
	res := h.d.Player.Play(h.d.Sessions, chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) handleStop(w http.ResponseWriter, r *http.Request) {
	stopped := h.d.Player.Stop(chi.URLParam(r, "session"))
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

var vttNameRe = regexp.MustCompile(`^([0-9a-fA-F]{40})\.vtt$`)

func (h *Handlers) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	m := vttNameRe.FindStringSubmatch(chi.URLParam(r, "file"))
	if m == nil || h.d.Subtitles == nil {
		http.NotFound(w, r)
		return
	}
	f, err := h.d.Subtitles.Open(m[1])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", torrentx.ContentTypeForName(fi.Name()))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	log.Printf("[subs] served %s", m[1])
}
