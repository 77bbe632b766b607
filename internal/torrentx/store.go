package torrentx

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"golang.org/x/sync/singleflight"

	"anime-streamer/internal/config"
	"anime-streamer/internal/events"
	"anime-streamer/pkg/types"
)

// Publisher receives content lifecycle events.
type Publisher interface {
	Publish(topic, subject string, payload any)
}

// Subtitler turns a completed media file into a subtitle track.
type Subtitler interface {
	Exists(id string) bool
	Extract(ctx context.Context, id, mediaPath string) (string, error)
}

// Membership persists which items the store holds so they survive restarts.
type Membership interface {
	SaveContent(ctx context.Context, id, locator, name string) error
	DeleteContent(ctx context.Context, id string) error
}

type Options struct {
	DataDir      string
	MediaExts    []string
	WaitMetadata time.Duration
	Poll         time.Duration
	TrackersMode string
}

func DefaultOptions() Options {
	return Options{
		DataDir:      config.DataRoot(),
		MediaExts:    config.MediaExts(),
		WaitMetadata: config.WaitMetadata(),
		Poll:         config.CompletionPoll(),
		TrackersMode: config.TrackersMode(),
	}
}

type AddResult struct {
	Item         types.ContentItem `json:"item"`
	AlreadyAdded bool              `json:"alreadyAdded"`
}

type entry struct {
	t       *torrent.Torrent
	locator string
	addedAt time.Time

	completed bool
	waiters   []chan types.ContentItem

	lastRead, lastWritten int64
	lastSample            time.Time
	downRate, upRate      float64
}

// Store is the content facade over a single engine client.
type Store struct {
	cl   *torrent.Client
	opts Options

	Events     Publisher
	Subtitles  Subtitler
	Membership Membership

	mu     sync.Mutex
	items  map[string]*entry
	active map[string]int
	group  singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStore(cl *torrent.Client, opts Options) *Store {
	if opts.Poll <= 0 {
		opts.Poll = 5 * time.Second
	}
	if len(opts.MediaExts) == 0 {
		opts.MediaExts = []string{".mkv"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cl:     cl,
		opts:   opts,
		items:  map[string]*entry{},
		active: map[string]int{},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers locator with the engine. Adding something already held
// returns the held item with AlreadyAdded set. Add waits up to the metadata
// timeout for the file manifest; an item without metadata is still returned.
func (s *Store) Add(ctx context.Context, locator string) (AddResult, error) {
	return s.add(ctx, locator, s.opts.WaitMetadata)
}

func (s *Store) add(ctx context.Context, locator string, wait time.Duration) (AddResult, error) {
	src, ih, err := ParseLocator(locator)
	if err != nil {
		return AddResult{}, err
	}
	id := ID(ih)

	v, err, _ := s.group.Do(id, func() (any, error) {
		s.mu.Lock()
		e, ok := s.items[id]
		s.mu.Unlock()
		if ok {
			return AddResult{Item: s.snapshot(id, e), AlreadyAdded: true}, nil
		}

		t, err := s.addToEngine(src, ih)
		if err != nil {
			return AddResult{}, err
		}
		e = &entry{t: t, locator: locator, addedAt: time.Now()}
		s.mu.Lock()
		s.items[id] = e
		s.mu.Unlock()
		log.Printf("[add] %s %s", id, strings.TrimSpace(t.Name()))

		s.wg.Add(1)
		go s.monitor(id, e)

		waitInfo(ctx, t, wait)
		if s.Membership != nil {
			if err := s.Membership.SaveContent(ctx, id, locator, t.Name()); err != nil {
				log.Printf("[content] persist %s: %v", id, err)
			}
		}
		return AddResult{Item: s.snapshot(id, e)}, nil
	})
	if err != nil {
		return AddResult{}, err
	}
	return v.(AddResult), nil
}

func (s *Store) addToEngine(src string, ih metainfo.Hash) (*torrent.Torrent, error) {
	if t, ok := s.cl.Torrent(ih); ok {
		return t, nil
	}
	if !strings.HasPrefix(src, "magnet:") {
		return s.cl.AddTorrentFromFile(src)
	}
	t, err := s.cl.AddMagnet(sanitizeMagnet(src, s.opts.TrackersMode))
	if err != nil {
		return nil, err
	}
	if tiers := buildTrackerTiers(s.opts.TrackersMode); len(tiers) != 0 {
		t.AddTrackers(tiers)
	}
	return t, nil
}

func waitInfo(ctx context.Context, t *torrent.Torrent, wait time.Duration) {
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-t.GotInfo():
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Restore re-adds persisted items without waiting for metadata.
func (s *Store) Restore(ctx context.Context, locators []string) {
	for _, l := range locators {
		if _, err := s.add(ctx, l, 0); err != nil {
			log.Printf("[content] restore %q: %v", l, err)
		}
	}
}

func (s *Store) List() []types.ContentItem {
	s.mu.Lock()
	ids := make([]string, 0, len(s.items))
	entries := make([]*entry, 0, len(s.items))
	for id, e := range s.items {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]types.ContentItem, 0, len(ids))
	for i, id := range ids {
		out = append(out, s.snapshot(id, entries[i]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

func (s *Store) Get(id string) (types.ContentItem, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return types.ContentItem{}, false
	}
	return s.snapshot(strings.ToLower(id), e), true
}

func (s *Store) lookup(id string) (*entry, bool) {
	if _, ok := parseID(id); !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[strings.ToLower(id)]
	return e, ok
}

// Remove drops the item from the engine. Downloaded data stays on disk.
func (s *Store) Remove(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	s.mu.Lock()
	e, ok := s.items[id]
	if ok {
		delete(s.items, id)
		for _, ch := range e.waiters {
			close(ch)
		}
		e.waiters = nil
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.t.Drop()
	if s.Membership != nil {
		if err := s.Membership.DeleteContent(context.Background(), id); err != nil {
			log.Printf("[content] forget %s: %v", id, err)
		}
	}
	log.Printf("[content] removed %s", id)
	return true
}

// Purge removes the item and deletes its data.
func (s *Store) Purge(id string) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	var path string
	if e.t.Info() != nil {
		path = filepath.Join(s.opts.DataDir, e.t.Info().Name)
	}
	if !s.Remove(id) {
		return false
	}
	if path != "" && path != filepath.Clean(s.opts.DataDir) {
		if err := os.RemoveAll(path); err != nil {
			log.Printf("[content] purge %s: %v", id, err)
		}
	}
	return true
}

// FindMediaFile returns the on-disk path of the first file, in manifest
// order, with a media extension, or false if metadata is missing or no file qualifies.
func (s *Store) FindMediaFile(id string) (string, bool) {
	e, ok := s.lookup(id)
	if !ok || e.t.Info() == nil {
		return "", false
	}
	f, ok := s.mediaFile(e.t)
	if !ok {
		return "", false
	}
	return filepath.Join(s.opts.DataDir, filepath.FromSlash(f.Path())), true
}

func (s *Store) mediaFile(t *torrent.Torrent) (*torrent.File, bool) {
	files := t.Files()
	entries := make([]types.FileEntry, len(files))
	for i, f := range files {
		entries[i] = types.FileEntry{Index: i, Name: f.DisplayPath(), Length: f.Length()}
	}
	i, ok := PickMediaFile(entries, s.opts.MediaExts)
	if !ok {
		return nil, false
	}
	return files[i], true
}

// PickMediaFile returns the index of the first entry, in manifest order,
// whose extension is one of exts. Size plays no part.
func PickMediaFile(files []types.FileEntry, exts []string) (int, bool) {
	for i, f := range files {
		ext := filepath.Ext(f.Name)
		for _, e := range exts {
			if strings.EqualFold(ext, e) {
				return i, true
			}
		}
	}
	return -1, false
}

// OnCompletion returns a channel that receives the item once its transfer
// completes, then closes. It is closed without a value if the item is
// removed first.
func (s *Store) OnCompletion(id string) (<-chan types.ContentItem, bool) {
	id = strings.ToLower(id)
	ch := make(chan types.ContentItem, 1)
	s.mu.Lock()
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if e.completed {
		s.mu.Unlock()
		ch <- s.snapshot(id, e)
		close(ch)
		return ch, true
	}
	e.waiters = append(e.waiters, ch)
	s.mu.Unlock()
	return ch, true
}

// Acquire marks id as being streamed until the returned func is called.
func (s *Store) Acquire(id string) func() {
	id = strings.ToLower(id)
	s.mu.Lock()
	s.active[id]++
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if n := s.active[id]; n > 1 {
				s.active[id] = n - 1
			} else {
				delete(s.active, id)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) InUse(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[strings.ToLower(id)] > 0
}

func (s *Store) DataDir() string { return s.opts.DataDir }

// Close stops the completion monitors. The engine client is owned by the
// caller.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Store) monitor(id string, e *entry) {
	defer s.wg.Done()
	select {
	case <-e.t.GotInfo():
	case <-e.t.Closed():
		return
	case <-s.ctx.Done():
		return
	}

	tick := time.NewTicker(s.opts.Poll)
	defer tick.Stop()
	for {
		s.sample(e)
		if e.t.BytesMissing() == 0 {
			s.complete(id, e)
			return
		}
		select {
		case <-tick.C:
		case <-e.t.Closed():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Store) sample(e *entry) {
	st := e.t.Stats()
	read, written := st.BytesReadData.Int64(), st.BytesWrittenData.Int64()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !e.lastSample.IsZero() {
		if dt := now.Sub(e.lastSample).Seconds(); dt > 0 {
			e.downRate = float64(read-e.lastRead) / dt
			e.upRate = float64(written-e.lastWritten) / dt
		}
	}
	e.lastRead, e.lastWritten, e.lastSample = read, written, now
}

func (s *Store) complete(id string, e *entry) {
	s.mu.Lock()
	if e.completed {
		s.mu.Unlock()
		return
	}
	e.completed = true
	e.downRate = 0
	waiters := e.waiters
	e.waiters = nil
	s.mu.Unlock()

	item := s.snapshot(id, e)
	log.Printf("[content] completed %s %s", id, item.Name)
	for _, ch := range waiters {
		ch <- item
		close(ch)
	}
	if s.Events != nil {
		s.Events.Publish(events.ContentCompleted, id, item)
	}
	s.extractSubtitles(id)
}

func (s *Store) extractSubtitles(id string) {
	if s.Subtitles == nil || s.Subtitles.Exists(id) {
		return
	}
	path, ok := s.FindMediaFile(id)
	if !ok {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Subtitles.Extract(s.ctx, id, path); err != nil {
			log.Printf("[subs] %s: %v", id, err)
		}
	}()
}

func (s *Store) snapshot(id string, e *entry) types.ContentItem {
	t := e.t
	s.mu.Lock()
	item := types.ContentItem{
		ID:           id,
		Locator:      e.locator,
		AddedAt:      e.addedAt,
		Done:         e.completed,
		DownloadRate: e.downRate,
		UploadRate:   e.upRate,
	}
	s.mu.Unlock()

	item.Name = t.Name()
	st := t.Stats()
	item.Peers = st.TotalPeers
	item.BytesUploaded = st.BytesWrittenData.Int64()

	if t.Info() == nil {
		return item
	}
	item.Ready = true
	files := t.Files()
	for i, f := range files {
		item.Files = append(item.Files, types.FileEntry{Index: i, Name: f.DisplayPath(), Length: f.Length()})
		item.Length += f.Length()
	}
	item.BytesCompleted = t.BytesCompleted()
	if item.Length > 0 {
		item.Progress = float64(item.BytesCompleted) / float64(item.Length)
	}
	if item.BytesCompleted > 0 {
		item.Ratio = float64(item.BytesUploaded) / float64(item.BytesCompleted)
	}
	if missing := item.Length - item.BytesCompleted; missing > 0 && item.DownloadRate > 0 {
		item.TimeRemaining = time.Duration(float64(missing)/item.DownloadRate) * time.Second
	}
	item.Path = filepath.Join(s.opts.DataDir, t.Info().Name)
	return item
}
