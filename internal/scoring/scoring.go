// Package scoring decides whether a search hit is an acceptable release of a
// given episode.
package scoring

import (
	"strconv"
	"strings"

	"anime-streamer/internal/textmatch"
	"anime-streamer/pkg/types"
)

type Params struct {
	// TitleThreshold is the similarity a cleaned release name must exceed.
	TitleThreshold float64
	// QualityTokens must appear in the release name; the first one present
	// also marks where CleanReleaseName cuts.
	QualityTokens []string
}

var DefaultParams = Params{TitleThreshold: 0.3, QualityTokens: []string{"720p", "1080p"}}

// Reject reasons.
const (
	RejectTitle   = "title_mismatch"
	RejectEpisode = "episode_missing"
	RejectQuality = "quality_missing"
)

type Verdict struct {
	Similarity float64
	Cleaned    string
	Reject     string
}

func (v Verdict) Accepted() bool { return v.Reject == "" }

// Evaluate normalizes the cleaned release name and the search title and runs
// the three gates in order: title similarity, episode number, quality token.
func Evaluate(c types.Candidate, title string, episode int, p Params) Verdict {
	cleaned := textmatch.Normalize(textmatch.CleanReleaseName(c.Name, p.QualityTokens))
	v := Verdict{Cleaned: cleaned}
	v.Similarity = textmatch.Similarity(cleaned, textmatch.Normalize(title))

	if why, reject := HardReject(cleaned, v.Similarity, episode, p); reject {
		v.Reject = why
	}
	return v
}

func HardReject(cleaned string, similarity float64, episode int, p Params) (string, bool) {
	if similarity <= p.TitleThreshold {
		return RejectTitle, true
	}
	if !strings.Contains(cleaned, textmatch.Pad2(episode)) && !strings.Contains(cleaned, strconv.Itoa(episode)) {
		return RejectEpisode, true
	}
	if !textmatch.ContainsAny(cleaned, p.QualityTokens) {
		return RejectQuality, true
	}
	return "", false
}

// FirstAccepted returns the first candidate, in backend order, that passes
// every gate. Seeders play no part beyond the backend's own ordering.
func FirstAccepted(cands []types.Candidate, title string, episode int, p Params) (types.Candidate, Verdict, bool) {
	for _, c := range cands {
		if v := Evaluate(c, title, episode, p); v.Accepted() {
			return c, v, true
		}
	}
	return types.Candidate{}, Verdict{}, false
}
