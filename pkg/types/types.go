package types

import "time"

type Title struct {
	Romaji  string `json:"romaji,omitempty"`
	English string `json:"english,omitempty"`
	Native  string `json:"native,omitempty"`
}

type FuzzyDate struct {
	Year  *int `json:"year,omitempty"`
	Month *int `json:"month,omitempty"`
	Day   *int `json:"day,omitempty"`
}

// AiringHint is the catalog's "next airing episode" record.
type AiringHint struct {
	AiringAt        int64 `json:"airingAt"`
	TimeUntilAiring int64 `json:"timeUntilAiring"`
	Episode         int   `json:"episode"`
}

type Trailer struct {
	ID        string `json:"id,omitempty"`
	Site      string `json:"site,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type SeriesMetadata struct {
	ID                int         `json:"id"`
	IDMal             int         `json:"idMal,omitempty"`
	Title             Title       `json:"title"`
	Synonyms          []string    `json:"synonyms,omitempty"`
	Format            string      `json:"format,omitempty"`
	Status            string      `json:"status,omitempty"`
	Description       string      `json:"description,omitempty"`
	StartDate         FuzzyDate   `json:"startDate"`
	EndDate           FuzzyDate   `json:"endDate"`
	Season            string      `json:"season,omitempty"`
	SeasonYear        int         `json:"seasonYear,omitempty"`
	Episodes          *int        `json:"episodes,omitempty"`
	Duration          *int        `json:"duration,omitempty"`
	Trailer           *Trailer    `json:"trailer,omitempty"`
	CoverImage        string      `json:"coverImage,omitempty"`
	BannerImage       string      `json:"bannerImage,omitempty"`
	Genres            []string    `json:"genres,omitempty"`
	AverageScore      int         `json:"averageScore,omitempty"`
	Popularity        int         `json:"popularity,omitempty"`
	Studios           []string    `json:"studios,omitempty"`
	NextAiringEpisode *AiringHint `json:"nextAiringEpisode,omitempty"`
	SiteURL           string      `json:"siteUrl,omitempty"`

	// local state, never supplied by the catalog
	Tracked     bool            `json:"tracked"`
	EpisodeList []EpisodeRecord `json:"episodeList,omitempty"`
}

// TitleVariants returns the non-empty titles in search priority order.
func (s SeriesMetadata) TitleVariants() []string {
	var out []string
	for _, t := range []string{s.Title.Romaji, s.Title.English, s.Title.Native} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s SeriesMetadata) DisplayTitle() string {
	if v := s.TitleVariants(); len(v) > 0 {
		return v[0]
	}
	return ""
}

// HasEpisode reports whether number already carries a locator.
func (s SeriesMetadata) HasEpisode(number int) bool {
	for _, ep := range s.EpisodeList {
		if ep.Number == number && ep.Locator != "" {
			return true
		}
	}
	return false
}

type WatchState string

const (
	Unwatched WatchState = "unwatched"
	Watching  WatchState = "watching"
	Watched   WatchState = "watched"
)

func (w WatchState) Valid() bool {
	switch w {
	case Unwatched, Watching, Watched:
		return true
	}
	return false
}

type EpisodeRecord struct {
	SeriesID   int        `json:"seriesId"`
	Number     int        `json:"number"`
	Locator    string     `json:"link,omitempty"`
	ContentID  string     `json:"infoHash,omitempty"`
	Release    string     `json:"release,omitempty"`
	WatchState WatchState `json:"watchState,omitempty"`
}

// Candidate is one search hit. It lives only for the duration of one query.
type Candidate struct {
	Name      string `json:"name"`
	Locator   string `json:"magnet"`
	InfoHash  string `json:"infoHash,omitempty"`
	Seeders   int    `json:"seeders"`
	Leechers  int    `json:"leechers"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	Backend   string `json:"backend,omitempty"`
}

type FileEntry struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Length int64  `json:"length"`
}

type ContentItem struct {
	ID             string        `json:"infoHash"`
	Name           string        `json:"name"`
	Locator        string        `json:"magnetURI"`
	Progress       float64       `json:"progress"`
	BytesCompleted int64         `json:"downloaded"`
	BytesUploaded  int64         `json:"uploaded"`
	Length         int64         `json:"length"`
	DownloadRate   float64       `json:"downloadSpeed"`
	UploadRate     float64       `json:"uploadSpeed"`
	Ratio          float64       `json:"ratio"`
	Peers          int           `json:"numPeers"`
	TimeRemaining  time.Duration `json:"timeRemaining"`
	Done           bool          `json:"done"`
	Ready          bool          `json:"ready"`
	Path           string        `json:"path"`
	AddedAt        time.Time     `json:"addedAt"`
	Files          []FileEntry   `json:"files"`
}

type FeedEpisode struct {
	Number  int    `json:"number"`
	Locator string `json:"link"`
}

// FeedBucket groups feed entries under the show name printed in the release title.
type FeedBucket struct {
	Name     string        `json:"name"`
	Episodes []FeedEpisode `json:"episodeList"`
}

type MergedCatalogEntry struct {
	Key               string          `json:"name"`
	Metadata          *SeriesMetadata `json:"metadata,omitempty"`
	Episodes          []FeedEpisode   `json:"episodeList"`
	MatchedConfidence float64         `json:"matchedConfidence,omitempty"`
}
