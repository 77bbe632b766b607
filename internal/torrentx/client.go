// Package torrentx wraps the BitTorrent engine behind the content store
// used by playback, the janitor and the HTTP API.
package torrentx

import (
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent"

	"anime-streamer/internal/config"
)

// NewClient builds the process-wide engine. It is created once by the
// entrypoint and handed to NewStore.
func NewClient(dataDir string) (*torrent.Client, error) {
	_ = os.MkdirAll(dataDir, 0o755)
	dir := winLongPath(dataDir)

	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = dir
	cfg.DisableTCP = false
	cfg.DisableUTP = true
	cfg.Seed = false
	cfg.NoUpload = false

	c, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("[init] client dataDir=%s trackersMode=%s", dir, config.TrackersMode())
	return c, nil
}

var extraHTTP = []string{
	"http://tracker.opentrackr.org:1337/announce",
	"https://tracker.opentrackr.org:443/announce",
	"http://nyaa.tracker.wf:7777/announce",
}
var extraUDP = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://open.demonii.com:1337/announce",
}

func buildTrackerTiers(mode string) [][]string {
	var tiers [][]string
	add := func(list []string) {
		for _, s := range list {
			tiers = append(tiers, []string{s})
		}
	}
	switch strings.ToLower(mode) {
	case "none":
	case "http":
		add(extraHTTP)
	case "udp":
		add(extraUDP)
	default:
		add(extraHTTP)
		add(extraUDP)
	}
	return tiers
}

// sanitizeMagnet drops announce URLs the tracker mode excludes.
func sanitizeMagnet(raw, mode string) string {
	if !strings.HasPrefix(raw, "magnet:") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	orig := q["tr"]
	q.Del("tr")
	for _, tr := range orig {
		trL := strings.ToLower(tr)
		switch mode {
		case "none":
			continue
		case "udp":
			if !strings.HasPrefix(trL, "udp://") {
				continue
			}
		case "http":
			if !strings.HasPrefix(trL, "http") {
				continue
			}
		}
		q.Add("tr", tr)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func winLongPath(p string) string {
	if os.PathSeparator != '\\' {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	if strings.HasPrefix(abs, `\\?\`) {
		return abs
	}
	if strings.HasPrefix(abs, `\\`) {
		return `\\?\UNC\` + strings.TrimPrefix(abs, `\\`)
	}
	return `\\?\` + abs
}
