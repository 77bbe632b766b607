package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"anime-streamer/internal/catalog"
	"anime-streamer/internal/config"
	"anime-streamer/internal/events"
	"anime-streamer/internal/feed"
	"anime-streamer/internal/httpapi"
	"anime-streamer/internal/janitor"
	"anime-streamer/internal/resolve"
	"anime-streamer/internal/search"
	"anime-streamer/internal/store"
	"anime-streamer/internal/stream"
	"anime-streamer/internal/subtitles"
	"anime-streamer/internal/torrentx"
	"anime-streamer/internal/tracker"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, tracker and janitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func openRepo(ctx context.Context) (*store.DB, *store.Repo, error) {
	db, err := store.Open(ctx, config.DBDSN())
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[db] connected")
	return db, store.NewRepo(db), nil
}

func newCatalogClient() *catalog.Client {
	return catalog.NewClient().
		WithEndpoint(config.CatalogEndpoint()).
		WithAttempts(config.CatalogRetries())
}

func newEngine(repo *store.Repo) *resolve.Engine {
	backend := search.Backend(search.FromConfig())
	if repo != nil {
		backend = search.Cached{Backend: backend, Cache: repo, TTL: config.SearchCacheTTL()}
	}
	return resolve.New(backend, resolve.DefaultOptions())
}

// newContentStore builds the engine client and the store over it. The
// returned func stops the store and then the client.
func newContentStore(repo *store.Repo, bus *events.Bus, subs *subtitles.Extractor) (*torrentx.Store, func(), error) {
	cl, err := torrentx.NewClient(config.DataRoot())
	if err != nil {
		return nil, nil, err
	}
	content := torrentx.NewStore(cl, torrentx.DefaultOptions())
	if subs != nil {
		content.Subtitles = subs
	}
	if bus != nil {
		content.Events = bus
	}
	if repo != nil {
		content.Membership = repo
	}
	closeFn := func() {
		content.Close()
		for _, err := range cl.Close() {
			log.Printf("[content] close client: %v", err)
		}
	}
	return content, closeFn, nil
}

// redactDSN hides the password of a postgres DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	rootCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repo, err := openRepo(rootCtx)
	if err != nil {
		return err
	}
	defer db.Close()

	bus := events.New()
	defer bus.Close()

	subs := subtitles.NewExtractor(config.SubtitlesDir(), config.FFmpegPath())
	content, closeContent, err := newContentStore(repo, bus, subs)
	if err != nil {
		return err
	}
	defer closeContent()

	if locs, err := repo.ContentLocators(rootCtx); err != nil {
		log.Printf("[content] load membership: %v", err)
	} else if len(locs) > 0 {
		content.Restore(rootCtx, locs)
		log.Printf("[content] restored %d items", len(locs))
	}

	gw := stream.NewGateway(stream.StoreSource{Store: content}, bus)
	defer gw.CloseAll()

	engine := newEngine(repo)
	cat := newCatalogClient()
	agg := feed.NewAggregator(cat, feed.NewFetcher())

	tr := tracker.New(repo, engine)
	tr.Adder = content
	tr.Events = bus
	go tr.Run(rootCtx)

	go janitor.New(content).Run(rootCtx)

	h := httpapi.NewHandlers(httpapi.Deps{
		Repo:      repo,
		Catalog:   cat,
		Merged:    agg,
		Resolver:  engine,
		Tracker:   tr,
		Content:   content,
		Player:    gw,
		Events:    bus,
		Subtitles: subs,
		Sessions:  rootCtx,
		Pages:     config.CatalogPages(),
	})

	addr := config.ListenAddr()
	log.Printf("[boot] listening on %s root=%s db=%s search=%s autoAdd=%v",
		addr, config.DataRoot(), redactDSN(config.DBDSN()), config.SearchBackend(), config.AutoAdd())

	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(log.Writer(), "[http] ", 0),
	}
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Printf("[boot] shutdown requested")
	case err := <-errc:
		return err
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	log.Printf("[boot] shutdown complete")
	return nil
}
