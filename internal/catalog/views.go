package catalog

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"anime-streamer/pkg/types"
)

type SortBy string

const (
	SortAirDate      SortBy = "air-date"
	SortRating       SortBy = "rating"
	SortAlphabetical SortBy = "alphabetical"
	SortPopularity   SortBy = "popularity"
	SortEpisodes     SortBy = "episodes"
)

// Filter selects and orders a series list. Empty fields (or "ALL"/"all")
// match everything.
type Filter struct {
	SortBy  SortBy
	Season  string
	Year    int
	Weekday string
	Search  string
	// Location resolves airing weekdays; nil means time.Local.
	Location *time.Location
}

// Apply returns a sorted, filtered copy of list.
func Apply(list []types.SeriesMetadata, f Filter) []types.SeriesMetadata {
	out := make([]types.SeriesMetadata, 0, len(list))
	season := strings.ToUpper(strings.TrimSpace(f.Season))
	weekday := strings.ToLower(strings.TrimSpace(f.Weekday))
	term := strings.TrimSpace(f.Search)

	for _, s := range list {
		if season != "" && season != "ALL" && s.Season != season {
			continue
		}
		if f.Year != 0 && s.SeasonYear != f.Year {
			continue
		}
		if weekday != "" && weekday != "all" && Weekday(s, f.Location) != weekday {
			continue
		}
		if term != "" && !matchesSearch(s, term) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, less(out, f.SortBy))
	return out
}

func less(list []types.SeriesMetadata, by SortBy) func(i, j int) bool {
	switch by {
	case SortAlphabetical:
		return func(i, j int) bool {
			return strings.ToLower(list[i].DisplayTitle()) < strings.ToLower(list[j].DisplayTitle())
		}
	case SortRating:
		return func(i, j int) bool { return list[i].AverageScore > list[j].AverageScore }
	case SortPopularity:
		return func(i, j int) bool { return list[i].Popularity > list[j].Popularity }
	case SortEpisodes:
		return func(i, j int) bool { return deref(list[i].Episodes) > deref(list[j].Episodes) }
	default:
		return func(i, j int) bool { return untilAiring(list[i]) < untilAiring(list[j]) }
	}
}

func matchesSearch(s types.SeriesMetadata, term string) bool {
	names := append(s.TitleVariants(), s.Synonyms...)
	for _, n := range names {
		if fuzzy.MatchNormalizedFold(term, n) {
			return true
		}
	}
	return false
}

// Weekday is the lower-case weekday of the next airing, or "unknown".
func Weekday(s types.SeriesMetadata, loc *time.Location) string {
	if s.NextAiringEpisode == nil || s.NextAiringEpisode.AiringAt == 0 {
		return "unknown"
	}
	if loc == nil {
		loc = time.Local
	}
	return strings.ToLower(time.Unix(s.NextAiringEpisode.AiringAt, 0).In(loc).Weekday().String())
}

// Today lists the tracked, currently releasing series that air on now's
// weekday.
func Today(list []types.SeriesMetadata, now time.Time) []types.SeriesMetadata {
	day := strings.ToLower(now.Weekday().String())
	var out []types.SeriesMetadata
	for _, s := range list {
		if s.Status == "RELEASING" && s.Tracked && Weekday(s, now.Location()) == day {
			out = append(out, s)
		}
	}
	return out
}

// ParseYear accepts "" and "all" as no filter.
func ParseYear(v string) int {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "all") {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func untilAiring(s types.SeriesMetadata) int64 {
	if s.NextAiringEpisode == nil {
		return 0
	}
	return s.NextAiringEpisode.TimeUntilAiring
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
