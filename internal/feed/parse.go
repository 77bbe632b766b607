package feed

import (
	"regexp"
	"strconv"
	"strings"

	"anime-streamer/internal/config"
	"anime-streamer/pkg/types"
)

// "[Group] Show Name - 05 (720p) [hash].mkv"
var titleRe = regexp.MustCompile(`^\[.+?\]\s*(.+?)\s*-\s*(\d+)`)

// ParseTitle extracts the show name and episode number of a release title.
func ParseTitle(title string) (name string, episode int, ok bool) {
	m := titleRe.FindStringSubmatch(title)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

// Parse groups entries into buckets by exact show name, in first-seen
// order. Within a bucket the first entry for an episode number wins.
// Entries that do not look like a release title are dropped.
func Parse(entries []RawEntry, overrides []config.NumberingOverride) []types.FeedBucket {
	var buckets []types.FeedBucket
	index := map[string]int{}
	seen := map[string]map[int]bool{}

	for _, e := range entries {
		name, ep, ok := ParseTitle(e.Title)
		if !ok {
			continue
		}
		i, exists := index[name]
		if !exists {
			i = len(buckets)
			index[name] = i
			buckets = append(buckets, types.FeedBucket{Name: name})
			seen[name] = map[int]bool{}
		}
		if seen[name][ep] {
			continue
		}
		seen[name][ep] = true
		buckets[i].Episodes = append(buckets[i].Episodes, types.FeedEpisode{Number: ep, Locator: e.Link})
	}
	return ApplyOverrides(buckets, overrides)
}

// ApplyOverrides shifts the episode numbers of every bucket whose name
// contains an override pattern. The first matching override applies.
// Episodes shifted below 1 are dropped.
func ApplyOverrides(buckets []types.FeedBucket, overrides []config.NumberingOverride) []types.FeedBucket {
	if len(overrides) == 0 {
		return buckets
	}
	for i := range buckets {
		o, ok := overrideFor(buckets[i].Name, overrides)
		if !ok {
			continue
		}
		kept := buckets[i].Episodes[:0]
		for _, ep := range buckets[i].Episodes {
			ep.Number += o.Offset
			if ep.Number < 1 {
				continue
			}
			kept = append(kept, ep)
		}
		buckets[i].Episodes = kept
	}
	return buckets
}

func overrideFor(name string, overrides []config.NumberingOverride) (config.NumberingOverride, bool) {
	for _, o := range overrides {
		if o.Contains != "" && o.Offset != 0 && strings.Contains(name, o.Contains) {
			return o, true
		}
	}
	return config.NumberingOverride{}, false
}
