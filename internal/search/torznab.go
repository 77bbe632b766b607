package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"anime-streamer/pkg/types"
)

// Torznab talks to a Prowlarr/Jackett aggregate Torznab endpoint.
type Torznab struct {
	BaseURL string // e.g. http://localhost:9696
	APIKey  string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

func NewTorznab(baseURL, apiKey string, perSecond float64) *Torznab {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Torznab{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 20 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// nyaa category ids mapped onto newznab ones
var torznabCategories = map[string]string{
	"1_0": "5070",
	"1_2": "5070",
	"1_3": "5070",
	"1_4": "5070",
}

const torznabPageSize = 75

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type torznabFeed struct {
	Channel struct {
		Items []struct {
			Title   string        `xml:"title"`
			Link    string        `xml:"link"`
			Size    int64         `xml:"size"`
			Seeders int           `xml:"seeders"`
			Peers   int           `xml:"peers"`
			Attrs   []torznabAttr `xml:"attr"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (c *Torznab) Search(ctx context.Context, query string, page int, opts Options) ([]types.Candidate, error) {
	if c == nil || strings.TrimSpace(c.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	if page < 1 {
		page = 1
	}
	v := url.Values{}
	v.Set("apikey", c.APIKey)
	v.Set("t", "search")
	v.Set("q", query)
	if cat, ok := torznabCategories[opts.Category]; ok {
		v.Set("cat", cat)
	}
	v.Set("limit", strconv.Itoa(torznabPageSize))
	v.Set("offset", strconv.Itoa((page-1)*torznabPageSize))
	u, err := joinURL(c.BaseURL, "/api/v1/indexers/all/results/torznab/api", v)
	if err != nil {
		return nil, err
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("torznab: %s", resp.Status)
	}

	var feed torznabFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("torznab: decode: %w", err)
	}

	var out []types.Candidate
	for _, it := range feed.Channel.Items {
		cand := types.Candidate{
			Name:      strings.TrimSpace(it.Title),
			Locator:   it.Link,
			Seeders:   it.Seeders,
			Leechers:  it.Peers,
			SizeBytes: it.Size,
			Backend:   "torznab",
		}
		for _, a := range it.Attrs {
			switch strings.ToLower(a.Name) {
			case "seeders":
				cand.Seeders, _ = strconv.Atoi(a.Value)
			case "peers", "leechers":
				cand.Leechers, _ = strconv.Atoi(a.Value)
			case "size":
				if n, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
					cand.SizeBytes = n
				}
			case "infohash":
				cand.InfoHash = strings.ToLower(a.Value)
			case "magneturl":
				cand.Locator = a.Value
			}
		}
		if cand.InfoHash == "" {
			cand.InfoHash = InfoHashFromLocator(cand.Locator)
		}
		if !strings.HasPrefix(strings.ToLower(cand.Locator), "magnet:") && isHex40(cand.InfoHash) {
			cand.Locator = MagnetFor(cand.InfoHash, cand.Name)
		}
		out = append(out, cand)
	}
	return out, nil
}
