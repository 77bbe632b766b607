package catalog

import "anime-streamer/pkg/types"

// MergeRefresh folds a freshly fetched list into the locally held one.
// Fetched metadata replaces the stored fields, but the tracked flag and the
// episode list are local state and survive. The later next-airing hint wins.
// Series missing from the fetch are kept, after the fetched ones.
func MergeRefresh(fetched, existing []types.SeriesMetadata) []types.SeriesMetadata {
	prevByID := make(map[int]types.SeriesMetadata, len(existing))
	for _, s := range existing {
		prevByID[s.ID] = s
	}
	seen := make(map[int]bool, len(fetched))

	out := make([]types.SeriesMetadata, 0, len(fetched)+len(existing))
	for _, s := range fetched {
		seen[s.ID] = true
		prev, ok := prevByID[s.ID]
		if !ok {
			out = append(out, s)
			continue
		}
		merged := s
		merged.Tracked = prev.Tracked
		merged.NextAiringEpisode = laterHint(s.NextAiringEpisode, prev.NextAiringEpisode)
		merged.EpisodeList = MergeEpisodes(s.EpisodeList, prev.EpisodeList)
		out = append(out, merged)
	}
	for _, s := range existing {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

func laterHint(fetched, prev *types.AiringHint) *types.AiringHint {
	switch {
	case fetched == nil:
		return prev
	case prev == nil:
		return fetched
	case fetched.Episode > prev.Episode:
		return fetched
	default:
		return prev
	}
}

// MergeEpisodes keeps every locally known locator, content id and watch
// state, adds newly fetched episodes, and retains local episodes the fetch
// did not mention.
func MergeEpisodes(fetched, existing []types.EpisodeRecord) []types.EpisodeRecord {
	prev := make(map[int]types.EpisodeRecord, len(existing))
	for _, ep := range existing {
		prev[ep.Number] = ep
	}
	seen := make(map[int]bool, len(fetched))
	out := make([]types.EpisodeRecord, 0, len(fetched)+len(existing))
	for _, ep := range fetched {
		if seen[ep.Number] {
			continue
		}
		seen[ep.Number] = true
		if old, ok := prev[ep.Number]; ok {
			if old.Locator != "" {
				ep.Locator = old.Locator
				ep.Release = old.Release
			}
			if old.ContentID != "" {
				ep.ContentID = old.ContentID
			}
			if old.WatchState != "" {
				ep.WatchState = old.WatchState
			}
		}
		out = append(out, ep)
	}
	for _, ep := range existing {
		if !seen[ep.Number] {
			out = append(out, ep)
		}
	}
	return out
}
