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

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"anime-streamer/pkg/types"
)

// Nyaa queries the RSS view of a nyaa.si style tracker.
type Nyaa struct {
	BaseURL string // e.g. https://nyaa.si
	HTTP    *http.Client
	Limiter *rate.Limiter
}

func NewNyaa(baseURL string, perSecond float64) *Nyaa {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Nyaa{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 20 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

type nyaaFeed struct {
	Channel struct {
		Items []struct {
			Title    string `xml:"title"`
			Link     string `xml:"link"`
			GUID     string `xml:"guid"`
			Seeders  int    `xml:"seeders"`
			Leechers int    `xml:"leechers"`
			InfoHash string `xml:"infoHash"`
			Size     string `xml:"size"`
			Category string `xml:"categoryId"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (n *Nyaa) Search(ctx context.Context, query string, page int, opts Options) ([]types.Candidate, error) {
	if n == nil || strings.TrimSpace(n.BaseURL) == "" {
		return nil, ErrNotConfigured
	}
	if page < 1 {
		page = 1
	}
	v := url.Values{}
	v.Set("page", "rss")
	v.Set("q", query)
	v.Set("c", orDefault(opts.Category, "1_2"))
	v.Set("f", "0")
	v.Set("s", orDefault(opts.Sort, "seeders"))
	v.Set("o", orDefault(opts.Order, "desc"))
	v.Set("p", strconv.Itoa(page))
	u, err := joinURL(n.BaseURL, "/", v)
	if err != nil {
		return nil, err
	}

	if n.Limiter != nil {
		if err := n.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")
	client := n.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("nyaa: %s", resp.Status)
	}

	var feed nyaaFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("nyaa: decode rss: %w", err)
	}

	out := make([]types.Candidate, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		ih := strings.ToLower(strings.TrimSpace(it.InfoHash))
		if ih == "" {
			ih = InfoHashFromLocator(it.Link)
		}
		loc := it.Link
		if !strings.HasPrefix(strings.ToLower(loc), "magnet:") && isHex40(ih) {
			loc = MagnetFor(ih, it.Title)
		}
		var size int64
		if it.Size != "" {
			if b, err := humanize.ParseBytes(it.Size); err == nil {
				size = int64(b)
			}
		}
		out = append(out, types.Candidate{
			Name:      strings.TrimSpace(it.Title),
			Locator:   loc,
			InfoHash:  ih,
			Seeders:   it.Seeders,
			Leechers:  it.Leechers,
			SizeBytes: size,
			Backend:   "nyaa",
		})
	}
	return out, nil
}
