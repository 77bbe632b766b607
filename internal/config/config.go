package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// NumberingOverride shifts feed episode numbers for shows whose releases
// continue the numbering of a previous cour.
type NumberingOverride struct {
	Contains string `toml:"contains" json:"contains"`
	Offset   int    `toml:"offset" json:"offset"`
}

var (
	dataRoot        = "./anime-cache"
	subtitlesDir    string
	cacheMaxBytes   int64
	janitorInterval = 2 * time.Minute
	waitMetadata    = 25 * time.Second
	completionPoll  = 5 * time.Second
	mediaExts       = []string{".mkv"}
	ffmpegPath      = "ffmpeg"
	trackersMode    = "all" // all|http|udp|none

	listenAddr = ":4001"
	dbDSN      = "anime-streamer.db"

	searchBackend  = "nyaa" // nyaa|torznab
	nyaaURL        = "https://nyaa.si"
	indexerURL     string
	indexerAPIKey  string
	searchRate     = 2.0
	searchCategory = "1_2"
	searchSort     = "seeders"
	searchOrder    = "desc"
	searchCacheTTL = 30 * time.Minute

	catalogEndpoint = "https://graphql.anilist.co"
	catalogPages    = 3
	catalogRetries  = uint(3)

	feedURL            = "https://subsplease.org/rss/?r=720"
	numberingOverrides = []NumberingOverride{{Contains: "Bisque", Offset: -12}}

	trackInterval = 2 * time.Hour
	trackWorkers  = 2
	autoAdd       bool

	// matching
	similarityThreshold = 0.3
	mergeThreshold      = 0.7
	queryCooldown       = 500 * time.Millisecond
	maxEpisodes         = 24
	defaultEpisodes     = 12
	preferredQuality    = "720p"
	qualityTokens       = []string{"720p", "1080p"}

	// logging
	logFilePath   = "debug.log"
	logMaxSizeMB  = 20
	logMaxBackups = 3
	logAllowRegex = `^\[(init|boot|http|db|add|content|stream|resolve|catalog|feed|track|janitor|subs|panic|search|events|store)\]`
	logDenyRegex  = `FlushFileBuffers|fsync|WriteFile|The handle is invalid|Access is denied|Permission denied`
	logDedupWin   = 3 * time.Second
)

// Load applies CONFIG_FILE (if any) and then the environment on top of the
// built-in defaults.
func Load() {
	if p := getenv("CONFIG_FILE", ""); p != "" {
		if err := LoadFile(p); err != nil {
			log.Printf("[init] WARN config file %q: %v", p, err)
		}
	}

	if v := getenv("TORRENT_DATA_ROOT", ""); v != "" {
		dataRoot = v
	}
	_ = os.MkdirAll(dataRoot, 0o755)
	subtitlesDir = getenv("SUBTITLES_DIR", subtitlesDir)

	cacheMaxBytes = getenvInt64("CACHE_MAX_BYTES", cacheMaxBytes)
	janitorInterval = getenvDuration("JANITOR_INTERVAL", janitorInterval)
	waitMetadata = getenvDuration("WAIT_METADATA", waitMetadata)
	if ms := getenvInt64("WAIT_METADATA_MS", 0); ms > 0 {
		waitMetadata = time.Duration(ms) * time.Millisecond
	}
	completionPoll = getenvDuration("COMPLETION_POLL", completionPoll)
	mediaExts = getenvList("MEDIA_EXTS", mediaExts)
	ffmpegPath = getenv("FFMPEG", ffmpegPath)
	trackersMode = strings.ToLower(getenv("TRACKERS_MODE", trackersMode))

	listenAddr = getenv("LISTEN", listenAddr)
	dbDSN = getenv("DB_DSN", getenv("PG_DSN", dbDSN))

	searchBackend = strings.ToLower(getenv("SEARCH_BACKEND", searchBackend))
	nyaaURL = getenv("NYAA_URL", nyaaURL)
	indexerURL = getenv("INDEXER_URL", indexerURL)
	indexerAPIKey = getenv("INDEXER_API_KEY", indexerAPIKey)
	searchRate = getenvFloat("SEARCH_RATE", searchRate)
	searchCacheTTL = getenvDuration("SEARCH_CACHE_TTL", searchCacheTTL)

	catalogEndpoint = getenv("CATALOG_ENDPOINT", catalogEndpoint)
	catalogPages = int(getenvInt64("CATALOG_PAGES", int64(catalogPages)))

	feedURL = getenv("FEED_URL", feedURL)

	trackInterval = getenvDuration("TRACK_INTERVAL", trackInterval)
	trackWorkers = int(getenvInt64("TRACK_WORKERS", int64(trackWorkers)))
	autoAdd = strings.ToLower(getenv("AUTO_ADD", strconv.FormatBool(autoAdd))) == "true"

	similarityThreshold = getenvFloat("SIMILARITY_THRESHOLD", similarityThreshold)
	mergeThreshold = getenvFloat("MERGE_THRESHOLD", mergeThreshold)
	queryCooldown = getenvDuration("QUERY_COOLDOWN", queryCooldown)
	preferredQuality = getenv("PREFERRED_QUALITY", preferredQuality)

	logFilePath = getenv("LOG_FILE", logFilePath)
	logAllowRegex = getenv("LOG_ALLOW", logAllowRegex)
	logDenyRegex = getenv("LOG_DENY", logDenyRegex)
	logDedupWin = getenvDuration("LOG_DEDUP_WINDOW", logDedupWin)
}

// getters
func DataRoot() string                        { return dataRoot }
func CacheMaxBytes() int64                    { return cacheMaxBytes }
func JanitorInterval() time.Duration          { return janitorInterval }
func WaitMetadata() time.Duration             { return waitMetadata }
func CompletionPoll() time.Duration           { return completionPoll }
func MediaExts() []string                     { return mediaExts }
func FFmpegPath() string                      { return ffmpegPath }
func TrackersMode() string                    { return trackersMode }
func ListenAddr() string                      { return listenAddr }
func DBDSN() string                           { return dbDSN }
func SearchBackend() string                   { return searchBackend }
func NyaaURL() string                         { return nyaaURL }
func IndexerURL() string                      { return indexerURL }
func IndexerAPIKey() string                   { return indexerAPIKey }
func SearchRate() float64                     { return searchRate }
func SearchCategory() string                  { return searchCategory }
func SearchSort() string                      { return searchSort }
func SearchOrder() string                     { return searchOrder }
func SearchCacheTTL() time.Duration           { return searchCacheTTL }
func CatalogEndpoint() string                 { return catalogEndpoint }
func CatalogPages() int                       { return catalogPages }
func CatalogRetries() uint                    { return catalogRetries }
func FeedURL() string                         { return feedURL }
func NumberingOverrides() []NumberingOverride { return numberingOverrides }
func TrackInterval() time.Duration            { return trackInterval }
func TrackWorkers() int                       { return trackWorkers }
func AutoAdd() bool                           { return autoAdd }
func SimilarityThreshold() float64            { return similarityThreshold }
func MergeThreshold() float64                 { return mergeThreshold }
func QueryCooldown() time.Duration            { return queryCooldown }
func MaxEpisodes() int                        { return maxEpisodes }
func DefaultEpisodes() int                    { return defaultEpisodes }
func PreferredQuality() string                { return preferredQuality }
func QualityTokens() []string                 { return qualityTokens }
func LogFilePath() string                     { return logFilePath }
func LogMaxSizeMB() int                       { return logMaxSizeMB }
func LogMaxBackups() int                      { return logMaxBackups }
func LogAllowRegex() string                   { return logAllowRegex }
func LogDenyRegex() string                    { return logDenyRegex }
func LogDedupWindow() time.Duration           { return logDedupWin }

// SubtitlesDir defaults to <data root>/subtitles.
func SubtitlesDir() string {
	if subtitlesDir != "" {
		return subtitlesDir
	}
	return filepath.Join(dataRoot, "subtitles")
}

// helpers
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getenvInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
func getenvList(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
