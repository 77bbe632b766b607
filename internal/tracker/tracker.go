// Package tracker periodically re-resolves the episodes of tracked series.
package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"anime-streamer/internal/config"
	"anime-streamer/internal/events"
	"anime-streamer/internal/torrentx"
	"anime-streamer/pkg/types"
)

type Resolver interface {
	Resolve(ctx context.Context, s types.SeriesMetadata) ([]types.EpisodeRecord, error)
}

type Repo interface {
	TrackedSeries(ctx context.Context) ([]types.SeriesMetadata, error)
	UpsertEpisode(ctx context.Context, ep types.EpisodeRecord) (bool, error)
}

type Adder interface {
	Add(ctx context.Context, locator string) (torrentx.AddResult, error)
}

type Publisher interface {
	Publish(topic, subject string, payload any)
}

type Tracker struct {
	Repo     Repo
	Resolver Resolver
	Adder    Adder
	Events   Publisher
	Interval time.Duration
	Workers  int
	AutoAdd  bool
}

func New(repo Repo, r Resolver) *Tracker {
	return &Tracker{
		Repo:     repo,
		Resolver: r,
		Interval: config.TrackInterval(),
		Workers:  config.TrackWorkers(),
		AutoAdd:  config.AutoAdd(),
	}
}

// Resolved is the payload of a series.resolved event.
type Resolved struct {
	SeriesID int                   `json:"seriesId"`
	Title    string                `json:"title"`
	Episodes []types.EpisodeRecord `json:"episodes"`
}

// Run resolves once immediately and then on every tick until ctx ends.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.Interval
	if interval <= 0 {
		interval = 2 * time.Hour
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		t.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// RunOnce resolves every tracked series and returns how many new episodes
// were committed.
func (t *Tracker) RunOnce(ctx context.Context) int {
	series, err := t.Repo.TrackedSeries(ctx)
	if err != nil {
		log.Printf("[track] list tracked: %v", err)
		return 0
	}
	workers := t.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu    sync.Mutex
		total int
	)
	p := pool.New().WithMaxGoroutines(workers)
	for _, s := range series {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			eps, err := t.ResolveSeries(ctx, s)
			if err != nil {
				log.Printf("[track] %d %q: %v (committed %d)", s.ID, s.DisplayTitle(), err, len(eps))
			}
			mu.Lock()
			total += len(eps)
			mu.Unlock()
		})
	}
	p.Wait()
	log.Printf("[track] pass done series=%d newEpisodes=%d", len(series), total)
	return total
}

// ResolveSeries resolves s, commits the new episodes and announces them.
// Only episodes whose locator was actually stored are returned. Episodes
// found before a resolve error are still committed, and the error is
// returned alongside them.
func (t *Tracker) ResolveSeries(ctx context.Context, s types.SeriesMetadata) ([]types.EpisodeRecord, error) {
	found, resolveErr := t.Resolver.Resolve(ctx, s)
	// A cancelled resolve must not also lose what it already found.
	commitCtx := context.WithoutCancel(ctx)
	var committed []types.EpisodeRecord
	for _, ep := range found {
		ep.SeriesID = s.ID
		stored, err := t.Repo.UpsertEpisode(commitCtx, ep)
		if err != nil {
			t.announce(s, committed)
			return committed, errors.Join(resolveErr, err)
		}
		if !stored {
			continue
		}
		committed = append(committed, ep)
		if t.AutoAdd && t.Adder != nil && ctx.Err() == nil {
			if _, err := t.Adder.Add(ctx, ep.Locator); err != nil {
				log.Printf("[track] add %d ep %d: %v", s.ID, ep.Number, err)
			}
		}
	}
	t.announce(s, committed)
	return committed, resolveErr
}

func (t *Tracker) announce(s types.SeriesMetadata, committed []types.EpisodeRecord) {
	if len(committed) > 0 && t.Events != nil {
		t.Events.Publish(events.SeriesResolved, "", Resolved{SeriesID: s.ID, Title: s.DisplayTitle(), Episodes: committed})
	}
}
