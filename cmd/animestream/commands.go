package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"anime-streamer/internal/catalog"
	"anime-streamer/internal/config"
	"anime-streamer/internal/feed"
	"anime-streamer/internal/tracker"
	"anime-streamer/pkg/types"
)

func newResolveCommand(flags *rootFlags) *cobra.Command {
	var (
		seriesID int
		episodes int
		next     int
	)
	cmd := &cobra.Command{
		Use:   "resolve [title]",
		Short: "Find locators for a series' episodes",
		Long: "Resolve a series by title, or a stored series with --series. " +
			"Stored series have their new episodes committed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, repo, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			engine := newEngine(repo)

			var (
				s   types.SeriesMetadata
				eps []types.EpisodeRecord
			)
			switch {
			case seriesID > 0:
				stored, ok, err := repo.GetSeries(ctx, seriesID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("series %d is not stored; run catalog first", seriesID)
				}
				s = stored
				eps, err = tracker.New(repo, engine).ResolveSeries(ctx, s)
				if err != nil {
					return err
				}
			case len(args) == 1:
				s = types.SeriesMetadata{Title: types.Title{Romaji: args[0]}}
				if episodes > 0 {
					s.Episodes = &episodes
				}
				if next > 0 {
					s.NextAiringEpisode = &types.AiringHint{Episode: next}
				}
				eps, err = engine.Resolve(ctx, s)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("give a title or --series")
			}

			if wantJSON(cmd, flags) {
				return writeJSON(cmd, eps)
			}
			rows := make([][]string, 0, len(eps))
			for _, ep := range eps {
				rows = append(rows, []string{strconv.Itoa(ep.Number), ep.Release, ep.ContentID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d episodes\n", s.DisplayTitle(), len(eps))
			printTable(cmd, []string{"EP", "RELEASE", "CONTENT ID"}, rows, 0)
			return nil
		},
	}
	cmd.Flags().IntVar(&seriesID, "series", 0, "resolve a stored series by catalog id")
	cmd.Flags().IntVar(&episodes, "episodes", 0, "known episode count")
	cmd.Flags().IntVar(&next, "next", 0, "next airing episode number")
	return cmd
}

func newCatalogCommand(flags *rootFlags) *cobra.Command {
	var (
		season  string
		year    int
		pages   int
		sortBy  string
		weekday string
		search  string
		today   bool
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Fetch a season from the catalog and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, repo, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			now := time.Now()
			curSeason, curYear := catalog.SeasonOf(now)
			if season == "" {
				season = curSeason
			}
			season = strings.ToUpper(season)
			if !catalog.ValidSeason(season) {
				return fmt.Errorf("season must be one of WINTER, SPRING, SUMMER, FALL")
			}
			if year == 0 {
				year = curYear
			}
			if pages == 0 {
				pages = config.CatalogPages()
			}

			fetched := newCatalogClient().Season(ctx, season, year, pages)
			list, err := repo.RefreshSeries(ctx, fetched)
			if err != nil {
				return err
			}
			if today {
				list = catalog.Today(list, now)
			} else {
				list = catalog.Apply(list, catalog.Filter{
					SortBy: catalog.SortBy(sortBy), Season: season, Year: year, Weekday: weekday, Search: search,
				})
			}

			if wantJSON(cmd, flags) {
				return writeJSON(cmd, list)
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{
					strconv.Itoa(s.ID), s.DisplayTitle(), enumLabel(s.Format), episodeCount(s),
					strconv.Itoa(s.AverageScore), nextAiring(s), trackedMark(s.Tracked),
				})
			}
			printTable(cmd, []string{"ID", "TITLE", "FORMAT", "EPS", "SCORE", "NEXT", "TRACKED"}, rows, 0, 3, 4)
			return nil
		},
	}
	cmd.Flags().StringVar(&season, "season", "", "WINTER, SPRING, SUMMER or FALL (default: current)")
	cmd.Flags().IntVar(&year, "year", 0, "season year (default: current)")
	cmd.Flags().IntVar(&pages, "pages", 0, "pages of 50 to fetch")
	cmd.Flags().StringVar(&sortBy, "sort", string(catalog.SortAirDate), "air-date, rating, alphabetical, popularity or episodes")
	cmd.Flags().StringVar(&weekday, "weekday", "", "only series airing on this weekday")
	cmd.Flags().StringVar(&search, "search", "", "fuzzy title filter")
	cmd.Flags().BoolVar(&today, "today", false, "tracked series airing today")
	cmd.AddCommand(newTrackCommand(true), newTrackCommand(false))
	return cmd
}

func newTrackCommand(tracked bool) *cobra.Command {
	use, short := "track <id>...", "Mark stored series as tracked"
	if !tracked {
		use, short = "untrack <id>...", "Stop tracking stored series"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, repo, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			for _, a := range args {
				id, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("bad series id %q", a)
				}
				if err := repo.SetTracked(ctx, id, tracked); err != nil {
					return fmt.Errorf("series %d: %w", id, err)
				}
			}
			return nil
		},
	}
}

func newFeedCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "Match the release feed against the current season",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agg := feed.NewAggregator(newCatalogClient(), feed.NewFetcher())
			merged, _ := agg.Current(cmd.Context())
			if wantJSON(cmd, flags) {
				return writeJSON(cmd, merged)
			}
			rows := make([][]string, 0, len(merged))
			for _, m := range merged {
				title, conf := "-", "-"
				if m.Metadata != nil {
					title = m.Metadata.DisplayTitle()
					conf = strconv.FormatFloat(m.MatchedConfidence, 'f', 2, 64)
				}
				nums := make([]string, 0, len(m.Episodes))
				for _, ep := range m.Episodes {
					nums = append(nums, strconv.Itoa(ep.Number))
				}
				rows = append(rows, []string{m.Key, title, conf, strings.Join(nums, ",")})
			}
			printTable(cmd, []string{"FEED NAME", "CATALOG TITLE", "CONF", "EPISODES"}, rows, 2)
			return nil
		},
	}
}

func episodeCount(s types.SeriesMetadata) string {
	if s.Episodes == nil {
		return "?"
	}
	return strconv.Itoa(*s.Episodes)
}

func nextAiring(s types.SeriesMetadata) string {
	h := s.NextAiringEpisode
	if h == nil || h.AiringAt == 0 {
		return "-"
	}
	return fmt.Sprintf("ep %d %s", h.Episode, humanize.Time(time.Unix(h.AiringAt, 0)))
}

// enumLabel renders catalog enum values such as TV_SHORT as "Tv Short".
func enumLabel(v string) string {
	if v == "" {
		return "-"
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(v, "_", " "))
}

func trackedMark(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
