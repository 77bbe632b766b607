package logx

import (
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

// maxTracked bounds the de-dup table; older keys are swept once it is full.
const maxTracked = 4096

// Writer filters log lines before they reach dst.
//   - allow (optional): only lines matching it pass
//   - deny (optional): lines matching it are dropped
//   - window: identical lines seen within it are dropped
type Writer struct {
	dst         io.Writer
	allow, deny *regexp.Regexp
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
	dropped  uint64
}

// New compiles the patterns fail-soft: an invalid pattern disables that filter.
func New(dst io.Writer, window time.Duration, allowPattern, denyPattern string) *Writer {
	return &Writer{
		dst:      dst,
		allow:    compile(allowPattern),
		deny:     compile(denyPattern),
		window:   window,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
}

func compile(pattern string) *regexp.Regexp {
	if strings.TrimSpace(pattern) == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re
}

func (w *Writer) Write(p []byte) (int, error) {
	line := string(p)
	if w.deny != nil && w.deny.MatchString(line) {
		return len(p), nil
	}
	if w.allow != nil && !w.allow.MatchString(line) {
		return len(p), nil
	}
	if w.window > 0 && w.seenRecently(strings.TrimRight(line, "\r\n")) {
		return len(p), nil
	}
	return w.dst.Write(p)
}

func (w *Writer) seenRecently(key string) bool {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastSeen[key]; ok && now.Sub(last) < w.window {
		w.dropped++
		return true
	}
	if len(w.lastSeen) >= maxTracked {
		for k, at := range w.lastSeen {
			if now.Sub(at) >= w.window {
				delete(w.lastSeen, k)
			}
		}
	}
	w.lastSeen[key] = now
	return false
}

// Dropped reports how many duplicate lines were suppressed.
func (w *Writer) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}
