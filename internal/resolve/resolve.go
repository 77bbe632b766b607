// Package resolve maps a series' episodes to content locators by querying a
// search backend with a fixed ladder of phrasings.
package resolve

import (
	"context"
	"fmt"
	"log"
	"time"

	"anime-streamer/internal/config"
	"anime-streamer/internal/scoring"
	"anime-streamer/internal/search"
	"anime-streamer/internal/textmatch"
	"anime-streamer/pkg/types"
)

type Options struct {
	Params scoring.Params
	// Quality is appended to the first two query phrasings.
	Quality string
	// Cooldown is slept after every issued query.
	Cooldown        time.Duration
	MaxEpisodes     int
	DefaultEpisodes int
	Search          search.Options
	Page            int
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultOptions() Options {
	return Options{
		Params: scoring.Params{
			TitleThreshold: config.SimilarityThreshold(),
			QualityTokens:  config.QualityTokens(),
		},
		Quality:         config.PreferredQuality(),
		Cooldown:        config.QueryCooldown(),
		MaxEpisodes:     config.MaxEpisodes(),
		DefaultEpisodes: config.DefaultEpisodes(),
		Search: search.Options{
			Category: config.SearchCategory(),
			Sort:     config.SearchSort(),
			Order:    config.SearchOrder(),
		},
		Page: 1,
	}
}

type Engine struct {
	backend search.Backend
	opts    Options
}

func New(b search.Backend, opts Options) *Engine {
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.MaxEpisodes <= 0 {
		opts.MaxEpisodes = 24
	}
	if opts.DefaultEpisodes <= 0 {
		opts.DefaultEpisodes = 12
	}
	return &Engine{backend: b, opts: opts}
}

// EpisodeRange is the highest episode number worth searching for. A
// next-airing hint wins over the declared count, and the result never
// exceeds MaxEpisodes.
func (e *Engine) EpisodeRange(s types.SeriesMetadata) int {
	n := e.opts.DefaultEpisodes
	switch {
	case s.NextAiringEpisode != nil && s.NextAiringEpisode.Episode > 0:
		n = s.NextAiringEpisode.Episode - 1
	case s.Episodes != nil && *s.Episodes > 0:
		n = *s.Episodes
	}
	if n > e.opts.MaxEpisodes {
		n = e.opts.MaxEpisodes
	}
	if n < 0 {
		n = 0
	}
	return n
}

// Queries lists the phrasings tried for one title and episode, in order.
func Queries(title string, episode int, quality string) []string {
	padded := textmatch.Pad2(episode)
	plain := fmt.Sprint(episode)
	out := make([]string, 0, 4)
	if quality != "" {
		out = append(out, title+" "+padded+" "+quality, title+" "+plain+" "+quality)
	}
	return append(out, title+" "+padded, title+" "+plain)
}

// Resolve searches for every unresolved episode in range and returns the
// newly resolved records. Episodes already carrying a locator are skipped.
// On cancellation the records found so far are returned with ctx.Err().
func (e *Engine) Resolve(ctx context.Context, s types.SeriesMetadata) ([]types.EpisodeRecord, error) {
	titles := s.TitleVariants()
	last := e.EpisodeRange(s)
	var out []types.EpisodeRecord
	if len(titles) == 0 || last == 0 {
		return out, nil
	}
	started := time.Now()
	queries := 0

	for ep := 1; ep <= last; ep++ {
		if s.HasEpisode(ep) {
			continue
		}
		rec, n, err := e.resolveEpisode(ctx, s.ID, titles, ep)
		queries += n
		if err != nil {
			return out, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	log.Printf("[resolve] series=%d %q range=1..%d found=%d queries=%d in %s",
		s.ID, s.DisplayTitle(), last, len(out), queries, time.Since(started).Truncate(time.Millisecond))
	return out, nil
}

func (e *Engine) resolveEpisode(ctx context.Context, seriesID int, titles []string, ep int) (*types.EpisodeRecord, int, error) {
	issued := 0
	for _, title := range titles {
		for _, q := range Queries(title, ep, e.opts.Quality) {
			if err := ctx.Err(); err != nil {
				return nil, issued, err
			}
			cands, err := e.backend.Search(ctx, q, e.opts.Page, e.opts.Search)
			issued++
			if err != nil {
				log.Printf("[resolve] search %q failed: %v", q, err)
				cands = nil
			}
			c, v, ok := scoring.FirstAccepted(cands, title, ep, e.opts.Params)
			if err := e.opts.Sleep(ctx, e.opts.Cooldown); err != nil {
				return nil, issued, err
			}
			if !ok {
				continue
			}
			contentID := c.InfoHash
			if contentID == "" {
				contentID = search.InfoHashFromLocator(c.Locator)
			}
			log.Printf("[resolve] series=%d ep=%d matched %q (sim=%.2f) via %q", seriesID, ep, c.Name, v.Similarity, q)
			return &types.EpisodeRecord{
				SeriesID:   seriesID,
				Number:     ep,
				Locator:    c.Locator,
				ContentID:  contentID,
				Release:    c.Name,
				WatchState: types.Unwatched,
			}, issued, nil
		}
	}
	return nil, issued, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
