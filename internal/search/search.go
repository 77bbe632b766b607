// Package search adapts external torrent indexes to a single query interface.
package search

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/anacrolix/torrent/metainfo"

	"anime-streamer/pkg/types"
)

// Options narrow a query. Empty fields fall back to the backend's defaults.
type Options struct {
	Category string
	Sort     string
	Order    string
}

// Backend runs one search query and returns the hits in backend order.
type Backend interface {
	Search(ctx context.Context, query string, page int, opts Options) ([]types.Candidate, error)
}

// BackendFunc lets a plain function act as a Backend.
type BackendFunc func(ctx context.Context, query string, page int, opts Options) ([]types.Candidate, error)

func (f BackendFunc) Search(ctx context.Context, query string, page int, opts Options) ([]types.Candidate, error) {
	return f(ctx, query, page, opts)
}

var ErrNotConfigured = errors.New("search backend not configured")

var defaultTrackers = []string{
	"http://nyaa.tracker.wf:7777/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
}

var btihRe = regexp.MustCompile(`(?i)urn:btih:([0-9a-f]{40})`)

// InfoHashFromLocator extracts the lower-case hex info hash from a magnet
// link or a bare 40-char hash. It returns "" when none is present.
func InfoHashFromLocator(loc string) string {
	loc = strings.TrimSpace(loc)
	if isHex40(loc) {
		return strings.ToLower(loc)
	}
	if strings.HasPrefix(strings.ToLower(loc), "magnet:") {
		if m, err := metainfo.ParseMagnetURI(loc); err == nil && m.InfoHash != (metainfo.Hash{}) {
			return strings.ToLower(m.InfoHash.HexString())
		}
	}
	if m := btihRe.FindStringSubmatch(loc); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// MagnetFor builds a magnet link for a hex info hash.
func MagnetFor(infoHash, name string) string {
	m := metainfo.Magnet{
		InfoHash:    metainfo.NewHashFromHex(strings.ToLower(infoHash)),
		DisplayName: name,
		Trackers:    defaultTrackers,
	}
	return m.String()
}

func isHex40(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func joinURL(base, path string, q url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String(), nil
}
