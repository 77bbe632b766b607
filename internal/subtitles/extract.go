// Package subtitles produces a WebVTT track for a completed content item,
// either from a sidecar .srt or by asking ffmpeg for the first subtitle
// stream of the media file.
package subtitles

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// ErrBusy means another process holds the extraction lock for the id.
var ErrBusy = errors.New("subtitle extraction in progress")

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, bin string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, bin, args...).CombinedOutput() //nolint:gosec
}

type Extractor struct {
	Fs     afero.Fs
	Dir    string
	FFmpeg string
	Run    Runner

	group singleflight.Group
}

func NewExtractor(dir, ffmpeg string) *Extractor {
	return &Extractor{Fs: afero.NewOsFs(), Dir: dir, FFmpeg: ffmpeg, Run: execRunner}
}

// Path is where the track for id lives once extracted.
func (e *Extractor) Path(id string) string {
	return filepath.Join(e.Dir, strings.ToLower(id)+".vtt")
}

func (e *Extractor) Exists(id string) bool {
	fi, err := e.Fs.Stat(e.Path(id))
	return err == nil && fi.Size() > 0
}

// Open returns the extracted track for id.
func (e *Extractor) Open(id string) (afero.File, error) {
	return e.Fs.Open(e.Path(id))
}

// Extract writes the track for id unless it already exists. Concurrent calls
// for the same id share one run; other processes are kept out with a file
// lock next to the output.
func (e *Extractor) Extract(ctx context.Context, id, mediaPath string) (string, error) {
	out := e.Path(id)
	if e.Exists(id) {
		return out, nil
	}
	_, err, _ := e.group.Do(strings.ToLower(id), func() (any, error) {
		return nil, e.extractLocked(ctx, id, mediaPath)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (e *Extractor) extractLocked(ctx context.Context, id, mediaPath string) error {
	if err := e.Fs.MkdirAll(e.Dir, 0o755); err != nil {
		return err
	}
	unlock, err := e.lock(id)
	if err != nil {
		return err
	}
	defer unlock()

	if e.Exists(id) {
		return nil
	}
	out := e.Path(id)

	if srt, ok := e.sidecar(mediaPath); ok {
		b, err := afero.ReadFile(e.Fs, srt)
		if err != nil {
			return err
		}
		log.Printf("[subs] %s from sidecar %s", id, filepath.Base(srt))
		return afero.WriteFile(e.Fs, out, []byte(SRTtoVTT(string(b))), 0o644)
	}

	tmp := out + ".part"
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", mediaPath,
		"-map", "0:s:0",
		"-f", "webvtt",
		tmp,
	}
	run := e.Run
	if run == nil {
		run = execRunner
	}
	if output, err := run(ctx, e.FFmpeg, args...); err != nil {
		_ = e.Fs.Remove(tmp)
		return fmt.Errorf("ffmpeg subtitles: %w: %s", err, strings.TrimSpace(string(output)))
	}
	if err := e.Fs.Rename(tmp, out); err != nil {
		return err
	}
	log.Printf("[subs] %s extracted", id)
	return nil
}

// lock takes the cross-process lock for id. flock needs a real file
// descriptor, so it only applies when Fs is the OS filesystem; other
// filesystems live in this process and singleflight already covers them.
func (e *Extractor) lock(id string) (func(), error) {
	if _, ok := e.Fs.(*afero.OsFs); !ok {
		return func() {}, nil
	}
	l := flock.New(filepath.Join(e.Dir, strings.ToLower(id)+".lock"))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire subtitle lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() { _ = l.Unlock() }, nil
}

func (e *Extractor) sidecar(mediaPath string) (string, bool) {
	srt := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".srt"
	fi, err := e.Fs.Stat(srt)
	if err != nil || fi.IsDir() {
		return "", false
	}
	return srt, true
}
