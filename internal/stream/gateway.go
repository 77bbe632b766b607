// Package stream serves a content item's media file over a private,
// per-session HTTP listener that speaks byte ranges only.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"anime-streamer/internal/events"
	"anime-streamer/internal/middleware"
	"anime-streamer/internal/torrentx"
)

var ErrNoStream = errors.New("no stream")

type Media interface {
	Name() string
	Size() int64
	NewReader() torrentx.MediaReader
}

// Source looks up playable media and pins it while a session is open.
type Source interface {
	Lookup(id string) (Media, error)
	Acquire(id string) func()
}

// StoreSource adapts the content store to Source.
type StoreSource struct{ *torrentx.Store }

func (s StoreSource) Lookup(id string) (Media, error) {
	m, err := s.Store.OpenMedia(id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type bufferedAheader interface {
	BufferedAhead(from int64) int64
}

type State int32

const (
	Idle State = iota
	Locating
	Serving
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locating:
		return "locating"
	case Serving:
		return "serving"
	default:
		return "closed"
	}
}

// Result is the single terminal signal of a Start: a URL, or nil when the
// item cannot be streamed.
type Result struct {
	SessionID string  `json:"sessionId"`
	ContentID string  `json:"contentId"`
	URL       *string `json:"url"`
}

type Publisher interface {
	Publish(topic, subject string, payload any)
}

type Gateway struct {
	src      Source
	events   Publisher
	host     string
	aheadSec int64

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewGateway(src Source, pub Publisher) *Gateway {
	return &Gateway{
		src:      src,
		events:   pub,
		host:     "127.0.0.1",
		aheadSec: 30,
		sessions: map[string]*Session{},
	}
}

type Session struct {
	ID        string
	ContentID string
	URL       string

	g       *Gateway
	state   atomic.Int32
	media   Media
	srv     *http.Server
	release func()
	ra      *readahead
	once    sync.Once
	done    chan struct{}

	mu   sync.Mutex
	stop func() bool
}

func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }

// Start runs one playback session for id. The returned channel yields
// exactly one Result and is then closed. The session ends on Close, on
// Stop(sessionID), or when ctx is cancelled.
func (g *Gateway) Start(ctx context.Context, id string) (*Session, <-chan Result) {
	out := make(chan Result, 1)
	s := &Session{ID: uuid.NewString(), ContentID: id, g: g, done: make(chan struct{}), ra: newReadahead(g.aheadSec)}

	url, err := g.open(ctx, s)
	res := Result{SessionID: s.ID, ContentID: id}
	switch {
	case err != nil:
		log.Printf("[stream] %s: %v", id, err)
		s.finish()
	case s.State() == Closed:
		// ctx went away while the listener was coming up.
		log.Printf("[stream] session %s closed before ready", s.ID)
	default:
		res.URL = &url
	}
	if g.events != nil {
		g.events.Publish(events.StreamReady, s.ID, res)
	}
	out <- res
	close(out)
	return s, out
}

// Play is Start for callers that only need the result.
func (g *Gateway) Play(ctx context.Context, id string) Result {
	_, ch := g.Start(ctx, id)
	return <-ch
}

func (g *Gateway) open(ctx context.Context, s *Session) (string, error) {
	s.state.Store(int32(Locating))
	if g.src == nil {
		return "", ErrNoStream
	}
	m, err := g.src.Lookup(s.ContentID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoStream, err)
	}
	if m == nil || m.Size() <= 0 {
		return "", ErrNoStream
	}
	s.media = m
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoStream, err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(g.host, "0"))
	if err != nil {
		return "", fmt.Errorf("%w: listen: %v", ErrNoStream, err)
	}
	s.release = g.src.Acquire(s.ContentID)
	s.srv = &http.Server{
		Handler:           http.HandlerFunc(s.serveRange),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(log.Writer(), "[http] ", 0),
	}
	port := ln.Addr().(*net.TCPAddr).Port
	s.URL = "http://" + net.JoinHostPort(g.host, strconv.Itoa(port))

	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()

	s.state.Store(int32(Serving))
	s.mu.Lock()
	s.stop = context.AfterFunc(ctx, func() { s.Close() })
	s.mu.Unlock()
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[stream] session %s serve: %v", s.ID, err)
		}
		s.Close()
	}()
	log.Printf("[stream] session %s serving %q on %s", s.ID, filepath.Base(m.Name()), s.URL)
	return s.URL, nil
}

// Close tears the listener down and releases the content. Safe to call more
// than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.srv != nil {
			_ = s.srv.Close()
		}
		if s.release != nil {
			s.release()
		}
		s.g.mu.Lock()
		delete(s.g.sessions, s.ID)
		s.g.mu.Unlock()
		s.finish()
		if s.srv != nil {
			log.Printf("[stream] session %s closed", s.ID)
			if s.g.events != nil {
				s.g.events.Publish(events.StreamClosed, s.ID, map[string]string{"sessionId": s.ID, "contentId": s.ContentID})
			}
		}
	})
}

func (s *Session) finish() {
	s.state.Store(int32(Closed))
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Stop closes the session with id, reporting whether it existed.
func (g *Gateway) Stop(sessionID string) bool {
	g.mu.Lock()
	s, ok := g.sessions[sessionID]
	g.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (g *Gateway) Sessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		out = append(out, s)
	}
	return out
}

func (g *Gateway) CloseAll() {
	for _, s := range g.Sessions() {
		s.Close()
	}
}

func (s *Session) serveRange(w http.ResponseWriter, r *http.Request) {
	middleware.EnableCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	size := s.media.Size()
	rh := r.Header.Get("Range")
	if rh == "" {
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	start, end, ok := parseByteRange(rh, size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	length := end - start + 1

	reader := s.media.NewReader()
	defer reader.Close()
	if _, err := reader.Seek(start, io.SeekStart); err != nil {
		http.Error(w, "seek error", http.StatusInternalServerError)
		return
	}
	reader.SetResponsive()
	reader.SetReadahead(s.ra.TargetBytes())

	name := s.media.Name()
	w.Header().Set("Content-Type", torrentx.ContentTypeForName(name))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", torrentx.SafeDownloadName(filepath.Base(name))))
	w.Header().Set("Cache-Control", "no-store")
	if b, ok := s.media.(bufferedAheader); ok {
		w.Header().Set("X-Buffered-Ahead", strconv.FormatInt(b.BufferedAhead(start), 10))
	}
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}

	began := time.Now()
	n, err := io.CopyN(w, reader, length)
	s.ra.Observe(n, time.Since(began).Milliseconds())
	if err != nil && !torrentx.ClientGone(err) && !errors.Is(err, io.EOF) {
		log.Printf("[stream] session %s copy %d-%d: %v", s.ID, start, end, err)
	}
}
