package torrentx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

var (
	ErrNotFound   = errors.New("content not found")
	ErrBadLocator = errors.New("unrecognized locator")
	ErrNoMedia    = errors.New("no media file in content")
)

// ParseLocator accepts a magnet URI, a 40-char hex or 32-char base32 info
// hash, or a path to a .torrent file.
func ParseLocator(raw string) (src string, ih metainfo.Hash, err error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", ih, ErrBadLocator
	case strings.HasPrefix(raw, "magnet:"):
		m, err := metainfo.ParseMagnetURI(raw)
		if err != nil || m.InfoHash == (metainfo.Hash{}) {
			return "", ih, fmt.Errorf("%w: %v", ErrBadLocator, err)
		}
		return raw, m.InfoHash, nil
	case len(raw) == 40 && isHex(raw):
		h := metainfo.NewHashFromHex(strings.ToLower(raw))
		return metainfo.Magnet{InfoHash: h}.String(), h, nil
	case len(raw) == 32:
		return ParseLocator("magnet:?xt=urn:btih:" + strings.ToUpper(raw))
	case strings.HasSuffix(strings.ToLower(raw), ".torrent"):
		mi, err := metainfo.LoadFromFile(raw)
		if err != nil {
			return "", ih, fmt.Errorf("%w: %v", ErrBadLocator, err)
		}
		return raw, mi.HashInfoBytes(), nil
	}
	return "", ih, fmt.Errorf("%w: %q", ErrBadLocator, raw)
}

func isHex(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'))
	}) == -1
}

// ID is the canonical content identifier: the lower-case hex info hash.
func ID(ih metainfo.Hash) string { return ih.HexString() }

func parseID(id string) (metainfo.Hash, bool) {
	id = strings.TrimSpace(id)
	if len(id) != 40 || !isHex(id) {
		return metainfo.Hash{}, false
	}
	return metainfo.NewHashFromHex(strings.ToLower(id)), true
}
