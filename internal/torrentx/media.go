package torrentx

import (
	"errors"
	"io"

	"github.com/anacrolix/torrent"
)

var ErrNotReady = errors.New("content metadata not yet available")

// MediaReader is the torrent.Reader surface playback uses.
type MediaReader interface {
	io.ReadSeekCloser
	SetResponsive()
	SetReadahead(int64)
}

// Media is one playable file of a content item.
type Media struct {
	t *torrent.Torrent
	f *torrent.File
}

func (m Media) Name() string { return m.f.DisplayPath() }
func (m Media) Size() int64  { return m.f.Length() }

func (m Media) NewReader() MediaReader { return m.f.NewReader() }

// BufferedAhead counts the verified bytes available contiguously from the
// file offset from.
func (m Media) BufferedAhead(from int64) int64 {
	info := m.t.Info()
	if info == nil {
		return 0
	}
	fileLen := m.f.Length()
	if from >= fileLen {
		return 0
	}
	pieceLen := info.PieceLength
	if pieceLen <= 0 {
		return 0
	}

	startGlobal := m.f.Offset() + from
	endGlobal := m.f.Offset() + fileLen

	startPiece := int(startGlobal / pieceLen)
	if m.t.PieceBytesMissing(startPiece) != 0 {
		return 0
	}
	ahead := min((int64(startPiece)+1)*pieceLen, endGlobal) - startGlobal
	for p := startPiece + 1; int64(p)*pieceLen < endGlobal; p++ {
		if m.t.PieceBytesMissing(p) != 0 {
			break
		}
		ps := int64(p) * pieceLen
		ahead += min(ps+pieceLen, endGlobal) - ps
	}
	return ahead
}

// OpenMedia returns the first media file of id in manifest order. It fails with ErrNotFound for
// unknown ids, ErrNotReady before metadata arrives and ErrNoMedia when no
// file has a media extension.
func (s *Store) OpenMedia(id string) (Media, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Media{}, ErrNotFound
	}
	if e.t.Info() == nil {
		return Media{}, ErrNotReady
	}
	f, ok := s.mediaFile(e.t)
	if !ok {
		return Media{}, ErrNoMedia
	}
	return Media{t: e.t, f: f}, nil
}
