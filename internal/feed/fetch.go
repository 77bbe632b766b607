// Package feed reads the release RSS feed, groups its entries by show and
// matches those groups against catalog metadata.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RawEntry is one <item> of the feed.
type RawEntry struct {
	Title   string
	Link    string
	GUID    string
	PubDate string
}

type rssDoc struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			GUID    string `xml:"guid"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

type Fetcher struct {
	HTTP *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: 20 * time.Second}}
}

func (f *Fetcher) Fetch(ctx context.Context, url string) ([]RawEntry, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("feed url not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")

	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed http error: %d", resp.StatusCode)
	}

	var doc rssDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	out := make([]RawEntry, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		out = append(out, RawEntry{
			Title:   strings.TrimSpace(it.Title),
			Link:    strings.TrimSpace(it.Link),
			GUID:    strings.TrimSpace(it.GUID),
			PubDate: strings.TrimSpace(it.PubDate),
		})
	}
	return out, nil
}
