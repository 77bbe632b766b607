package search

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"anime-streamer/internal/config"
	"anime-streamer/pkg/types"
)

// Cache stores search results by query key.
type Cache interface {
	GetSearchCache(ctx context.Context, key string, maxAge time.Duration) ([]types.Candidate, bool, error)
	PutSearchCache(ctx context.Context, key string, cands []types.Candidate) error
}

// Cached serves repeated queries from Cache for TTL. Only non-empty results
// are cached so a new release is picked up on the next pass.
type Cached struct {
	Backend Backend
	Cache   Cache
	TTL     time.Duration
}

func (c Cached) Search(ctx context.Context, query string, page int, opts Options) ([]types.Candidate, error) {
	key := cacheKey(query, page, opts)
	if cands, ok, err := c.Cache.GetSearchCache(ctx, key, c.TTL); err != nil {
		log.Printf("[search] cache read %q: %v", key, err)
	} else if ok {
		return cands, nil
	}
	cands, err := c.Backend.Search(ctx, query, page, opts)
	if err != nil {
		return nil, err
	}
	if len(cands) > 0 {
		if err := c.Cache.PutSearchCache(ctx, key, cands); err != nil {
			log.Printf("[search] cache write %q: %v", key, err)
		}
	}
	return cands, nil
}

func cacheKey(query string, page int, opts Options) string {
	return fmt.Sprintf("%s|p%d|%s|%s|%s", strings.ToLower(strings.TrimSpace(query)), page, opts.Category, opts.Sort, opts.Order)
}

// FromConfig builds the configured backend.
func FromConfig() Backend {
	switch config.SearchBackend() {
	case "torznab", "prowlarr":
		return NewTorznab(config.IndexerURL(), config.IndexerAPIKey(), config.SearchRate())
	default:
		return NewNyaa(config.NyaaURL(), config.SearchRate())
	}
}
