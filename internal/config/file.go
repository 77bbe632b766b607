package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the optional TOML config file. Absent keys leave the
// built-in default untouched.
type fileConfig struct {
	DataRoot      *string `toml:"data_root"`
	SubtitlesDir  *string `toml:"subtitles_dir"`
	CacheMaxBytes *int64  `toml:"cache_max_bytes"`
	Listen        *string `toml:"listen"`
	DatabaseDSN   *string `toml:"database_dsn"`
	FFmpeg        *string `toml:"ffmpeg"`

	Content struct {
		MediaExts    []string `toml:"media_exts"`
		WaitMetadata *string  `toml:"wait_metadata"`
	} `toml:"content"`

	Search struct {
		Backend  *string  `toml:"backend"`
		NyaaURL  *string  `toml:"nyaa_url"`
		Indexer  *string  `toml:"indexer_url"`
		APIKey   *string  `toml:"indexer_api_key"`
		Rate     *float64 `toml:"rate"`
		Category *string  `toml:"category"`
		Sort     *string  `toml:"sort"`
		Order    *string  `toml:"order"`
	} `toml:"search"`

	Matching struct {
		SimilarityThreshold *float64 `toml:"similarity_threshold"`
		MergeThreshold      *float64 `toml:"merge_threshold"`
		QueryCooldown       *string  `toml:"query_cooldown"`
		MaxEpisodes         *int     `toml:"max_episodes"`
		DefaultEpisodes     *int     `toml:"default_episodes"`
		PreferredQuality    *string  `toml:"preferred_quality"`
		QualityTokens       []string `toml:"quality_tokens"`
	} `toml:"matching"`

	Catalog struct {
		Endpoint *string `toml:"endpoint"`
		Pages    *int    `toml:"pages"`
	} `toml:"catalog"`

	Feed struct {
		URL       *string             `toml:"url"`
		Overrides []NumberingOverride `toml:"override"`
	} `toml:"feed"`

	Tracker struct {
		Interval *string `toml:"interval"`
		Workers  *int    `toml:"workers"`
		AutoAdd  *bool   `toml:"auto_add"`
	} `toml:"tracker"`
}

// LoadFile overlays a TOML config file on the current settings.
func LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return fc.apply()
}

func (fc *fileConfig) apply() error {
	setStr(&dataRoot, fc.DataRoot)
	setStr(&subtitlesDir, fc.SubtitlesDir)
	if fc.CacheMaxBytes != nil {
		cacheMaxBytes = *fc.CacheMaxBytes
	}
	setStr(&listenAddr, fc.Listen)
	setStr(&dbDSN, fc.DatabaseDSN)
	setStr(&ffmpegPath, fc.FFmpeg)

	if len(fc.Content.MediaExts) > 0 {
		mediaExts = fc.Content.MediaExts
	}
	if err := setDur(&waitMetadata, fc.Content.WaitMetadata); err != nil {
		return fmt.Errorf("content.wait_metadata: %w", err)
	}

	setStr(&searchBackend, fc.Search.Backend)
	setStr(&nyaaURL, fc.Search.NyaaURL)
	setStr(&indexerURL, fc.Search.Indexer)
	setStr(&indexerAPIKey, fc.Search.APIKey)
	if fc.Search.Rate != nil {
		searchRate = *fc.Search.Rate
	}
	setStr(&searchCategory, fc.Search.Category)
	setStr(&searchSort, fc.Search.Sort)
	setStr(&searchOrder, fc.Search.Order)

	m := fc.Matching
	if m.SimilarityThreshold != nil {
		similarityThreshold = *m.SimilarityThreshold
	}
	if m.MergeThreshold != nil {
		mergeThreshold = *m.MergeThreshold
	}
	if err := setDur(&queryCooldown, m.QueryCooldown); err != nil {
		return fmt.Errorf("matching.query_cooldown: %w", err)
	}
	if m.MaxEpisodes != nil && *m.MaxEpisodes > 0 {
		maxEpisodes = *m.MaxEpisodes
	}
	if m.DefaultEpisodes != nil && *m.DefaultEpisodes > 0 {
		defaultEpisodes = *m.DefaultEpisodes
	}
	setStr(&preferredQuality, m.PreferredQuality)
	if len(m.QualityTokens) > 0 {
		qualityTokens = m.QualityTokens
	}

	setStr(&catalogEndpoint, fc.Catalog.Endpoint)
	if fc.Catalog.Pages != nil && *fc.Catalog.Pages > 0 {
		catalogPages = *fc.Catalog.Pages
	}

	setStr(&feedURL, fc.Feed.URL)
	if fc.Feed.Overrides != nil {
		numberingOverrides = fc.Feed.Overrides
	}

	if err := setDur(&trackInterval, fc.Tracker.Interval); err != nil {
		return fmt.Errorf("tracker.interval: %w", err)
	}
	if fc.Tracker.Workers != nil && *fc.Tracker.Workers > 0 {
		trackWorkers = *fc.Tracker.Workers
	}
	if fc.Tracker.AutoAdd != nil {
		autoAdd = *fc.Tracker.AutoAdd
	}
	return nil
}

func setStr(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setDur(dst *time.Duration, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
