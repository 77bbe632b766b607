// Package catalog fetches seasonal series metadata from the AniList GraphQL
// API and provides the merge and view helpers built on top of it.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"anime-streamer/pkg/types"
)

var ErrGraphQL = errors.New("anilist graphql error")

const seasonQuery = `query ($seasonYear: Int, $season: MediaSeason, $page: Int) {
  Page(page: $page, perPage: 50) {
    media(seasonYear: $seasonYear, season: $season, type: ANIME, sort: POPULARITY_DESC) {
      id
      idMal
      title { romaji english native }
      format
      status
      description
      startDate { year month day }
      endDate { year month day }
      season
      seasonYear
      episodes
      duration
      trailer { id site thumbnail }
      coverImage { large }
      bannerImage
      genres
      synonyms
      averageScore
      popularity
      studios { edges { node { name } } }
      nextAiringEpisode { airingAt timeUntilAiring episode }
      siteUrl
    }
  }
}`

type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	attempts uint
}

func NewClient() *Client {
	return &Client{
		endpoint: "https://graphql.anilist.co",
		http:     &http.Client{Timeout: 15 * time.Second},
		// AniList allows 90 requests per minute.
		limiter:  rate.NewLimiter(rate.Every(time.Minute/90), 5),
		attempts: 3,
	}
}

func (c *Client) WithEndpoint(endpoint string) *Client {
	if strings.TrimSpace(endpoint) != "" {
		c.endpoint = strings.TrimSpace(endpoint)
	}
	return c
}

func (c *Client) WithAttempts(n uint) *Client {
	if n > 0 {
		c.attempts = n
	}
	return c
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type pageData struct {
	Page struct {
		Media []mediaDTO `json:"media"`
	} `json:"Page"`
}

type mediaDTO struct {
	ID          int             `json:"id"`
	IDMal       int             `json:"idMal"`
	Title       types.Title     `json:"title"`
	Format      string          `json:"format"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	StartDate   types.FuzzyDate `json:"startDate"`
	EndDate     types.FuzzyDate `json:"endDate"`
	Season      string          `json:"season"`
	SeasonYear  int             `json:"seasonYear"`
	Episodes    *int            `json:"episodes"`
	Duration    *int            `json:"duration"`
	Trailer     *types.Trailer  `json:"trailer"`
	CoverImage  struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	BannerImage  string   `json:"bannerImage"`
	Genres       []string `json:"genres"`
	Synonyms     []string `json:"synonyms"`
	AverageScore int      `json:"averageScore"`
	Popularity   int      `json:"popularity"`
	Studios      struct {
		Edges []struct {
			Node struct {
				Name string `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"studios"`
	NextAiringEpisode *types.AiringHint `json:"nextAiringEpisode"`
	SiteURL           string            `json:"siteUrl"`
}

func (m mediaDTO) toSeries() types.SeriesMetadata {
	s := types.SeriesMetadata{
		ID:                m.ID,
		IDMal:             m.IDMal,
		Title:             m.Title,
		Synonyms:          m.Synonyms,
		Format:            m.Format,
		Status:            m.Status,
		Description:       m.Description,
		StartDate:         m.StartDate,
		EndDate:           m.EndDate,
		Season:            m.Season,
		SeasonYear:        m.SeasonYear,
		Episodes:          m.Episodes,
		Duration:          m.Duration,
		Trailer:           m.Trailer,
		CoverImage:        m.CoverImage.Large,
		BannerImage:       m.BannerImage,
		Genres:            m.Genres,
		AverageScore:      m.AverageScore,
		Popularity:        m.Popularity,
		NextAiringEpisode: m.NextAiringEpisode,
		SiteURL:           m.SiteURL,
	}
	for _, e := range m.Studios.Edges {
		if e.Node.Name != "" {
			s.Studios = append(s.Studios, e.Node.Name)
		}
	}
	return s
}

// SeasonPage fetches one page (50 entries) of a season's series ordered by
// popularity.
func (c *Client) SeasonPage(ctx context.Context, season string, year, page int) ([]types.SeriesMetadata, error) {
	req := graphQLRequest{
		Query: seasonQuery,
		Variables: map[string]any{
			"seasonYear": year,
			"season":     season,
			"page":       page,
		},
	}
	var out graphQLResponse[pageData]
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrGraphQL, out.Errors[0].Message)
	}
	series := make([]types.SeriesMetadata, 0, len(out.Data.Page.Media))
	for _, m := range out.Data.Page.Media {
		series = append(series, m.toSeries())
	}
	return series, nil
}

// CurrentSeason fetches the first pages of the season containing now. A
// failed page is logged and skipped.
func (c *Client) CurrentSeason(ctx context.Context, now time.Time, pages int) []types.SeriesMetadata {
	season, year := SeasonOf(now)
	return c.Season(ctx, season, year, pages)
}

func (c *Client) Season(ctx context.Context, season string, year, pages int) []types.SeriesMetadata {
	if pages < 1 {
		pages = 1
	}
	var all []types.SeriesMetadata
	for page := 1; page <= pages; page++ {
		got, err := c.SeasonPage(ctx, season, year, page)
		if err != nil {
			log.Printf("[catalog] %s %d page %d: %v", season, year, page, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		all = append(all, got...)
		if len(got) < 50 {
			break
		}
	}
	log.Printf("[catalog] %s %d fetched=%d", season, year, len(all))
	return all
}

type httpStatusError struct{ code int }

func (e httpStatusError) Error() string { return fmt.Sprintf("anilist http error: %d", e.code) }

func (c *Client) do(ctx context.Context, req graphQLRequest, out any) error {
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "application/json")

			resp, err := c.http.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				err := httpStatusError{code: resp.StatusCode}
				if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
					return err
				}
				return retry.Unrecoverable(err)
			}
			return json.NewDecoder(resp.Body).Decode(out)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
