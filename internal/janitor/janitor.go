// Package janitor keeps the content cache under its size cap.
package janitor

import (
	"context"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"anime-streamer/internal/config"
	"anime-streamer/internal/torrentx"
	"anime-streamer/pkg/types"
)

// Content is the part of the content store the janitor drives.
type Content interface {
	List() []types.ContentItem
	InUse(id string) bool
	Purge(id string) bool
}

type Janitor struct {
	Content  Content
	Interval time.Duration
	MaxBytes int64
	// Usage reports bytes on disk; defaults to the size of the data root.
	Usage func() int64
}

func New(c Content) *Janitor {
	root := config.DataRoot()
	return &Janitor{
		Content:  c,
		Interval: config.JanitorInterval(),
		MaxBytes: config.CacheMaxBytes(),
		Usage:    func() int64 { return torrentx.DirSize(root) },
	}
}

type cand struct {
	id   string
	at   time.Time
	size int64
	name string
}

func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			j.Sweep()
		}
	}
}

// Sweep evicts completed items that no session is playing, oldest first,
// until usage drops under the cap. It returns the number evicted.
func (j *Janitor) Sweep() int {
	max := j.MaxBytes
	if max <= 0 || j.Usage == nil {
		return 0
	}
	used := j.Usage()
	evicted := 0
	tried := map[string]bool{}
	for used > max {
		var cands []cand
		for _, it := range j.Content.List() {
			if !it.Done || tried[it.ID] || j.Content.InUse(it.ID) {
				continue
			}
			cands = append(cands, cand{id: it.ID, at: it.AddedAt, size: it.Length, name: it.Name})
		}
		if len(cands) == 0 {
			log.Printf("[janitor] cache %s > %s but no safe candidate to evict; will retry later",
				humanize.IBytes(uint64(used)), humanize.IBytes(uint64(max)))
			break
		}
		best := pickBest(cands)
		tried[best.id] = true
		log.Printf("[janitor] evicting %s ih=%s (age=%s size=%s) | used=%s max=%s",
			best.name, best.id, time.Since(best.at).Truncate(time.Second),
			humanize.IBytes(uint64(best.size)), humanize.IBytes(uint64(used)), humanize.IBytes(uint64(max)))
		if j.Content.Purge(best.id) {
			evicted++
		}
		used = j.Usage()
	}
	return evicted
}

// pickBest prefers the oldest item; among items added within two minutes
// of each other the larger one goes first.
func pickBest(cands []cand) cand {
	best := cands[0]
	for _, x := range cands[1:] {
		older := x.at.Before(best.at)
		closeAge := x.at.Sub(best.at)
		if closeAge < 0 {
			closeAge = -closeAge
		}
		bigger := x.size > best.size
		if older || (closeAge < 2*time.Minute && bigger) {
			best = x
		}
	}
	return best
}
