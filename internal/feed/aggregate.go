package feed

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"anime-streamer/internal/config"
	"anime-streamer/internal/textmatch"
	"anime-streamer/pkg/types"
)

// Merge joins catalog metadata onto feed buckets. Each metadata record takes
// the bucket whose name best matches any of its titles or synonyms, if that
// score reaches threshold. A bucket and a series id are each merged at most
// once, first come first served in metadata order. Unmatched buckets are kept
// without metadata. Output follows bucket order.
func Merge(metadata []types.SeriesMetadata, buckets []types.FeedBucket, threshold float64) []types.MergedCatalogEntry {
	keys := make([]string, len(buckets))
	byKey := make(map[string]int, len(buckets))
	for i, b := range buckets {
		keys[i] = b.Name
		byKey[b.Name] = i
	}

	type match struct {
		meta  *types.SeriesMetadata
		score float64
	}
	claimed := make(map[int]match, len(buckets))
	mergedIDs := map[int]bool{}

	for i := range metadata {
		m := &metadata[i]
		if mergedIDs[m.ID] {
			continue
		}
		variants := append(m.TitleVariants(), m.Synonyms...)
		key, score, ok := textmatch.Best(variants, keys)
		if !ok || score < threshold {
			continue
		}
		bi := byKey[key]
		if _, taken := claimed[bi]; taken {
			continue
		}
		claimed[bi] = match{meta: m, score: score}
		mergedIDs[m.ID] = true
	}

	out := make([]types.MergedCatalogEntry, 0, len(buckets))
	emitted := map[int]bool{}
	for i, b := range buckets {
		e := types.MergedCatalogEntry{Key: b.Name, Episodes: b.Episodes}
		if mt, ok := claimed[i]; ok {
			if emitted[mt.meta.ID] {
				continue
			}
			emitted[mt.meta.ID] = true
			meta := *mt.meta
			e.Metadata = &meta
			e.MatchedConfidence = mt.score
		}
		out = append(out, e)
	}
	return out
}

// CatalogSource is the part of catalog.Client the aggregator needs.
type CatalogSource interface {
	CurrentSeason(ctx context.Context, now time.Time, pages int) []types.SeriesMetadata
}

type EntrySource interface {
	Fetch(ctx context.Context, url string) ([]RawEntry, error)
}

type Aggregator struct {
	Catalog   CatalogSource
	Feed      EntrySource
	FeedURL   string
	Pages     int
	Threshold float64
	Overrides []config.NumberingOverride
	Now       func() time.Time
}

func NewAggregator(c CatalogSource, f EntrySource) *Aggregator {
	return &Aggregator{
		Catalog:   c,
		Feed:      f,
		FeedURL:   config.FeedURL(),
		Pages:     config.CatalogPages(),
		Threshold: config.MergeThreshold(),
		Overrides: config.NumberingOverrides(),
		Now:       time.Now,
	}
}

// Current fetches the current season and the feed concurrently and merges
// them. A feed failure yields the catalog matched against nothing.
func (a *Aggregator) Current(ctx context.Context) ([]types.MergedCatalogEntry, []types.SeriesMetadata) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	var (
		metadata []types.SeriesMetadata
		buckets  []types.FeedBucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		metadata = a.Catalog.CurrentSeason(gctx, now(), a.Pages)
		return nil
	})
	g.Go(func() error {
		entries, err := a.Feed.Fetch(gctx, a.FeedURL)
		if err != nil {
			log.Printf("[feed] fetch %s: %v", a.FeedURL, err)
			return nil
		}
		buckets = Parse(entries, a.Overrides)
		return nil
	})
	_ = g.Wait()

	merged := Merge(metadata, buckets, a.Threshold)
	log.Printf("[feed] buckets=%d series=%d merged=%d", len(buckets), len(metadata), len(merged))
	return merged, metadata
}
