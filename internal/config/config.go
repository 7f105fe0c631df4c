package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds controller paths + player settings.
// Load from env and/or a .env file (see LoadEnvFile).
type Config struct {
	// Paths
	StateDir   string // runtime state root, e.g. /var/lib/retro-cast
	ConfigDir  string // JSON config root, e.g. /etc/retro-cast
	IndexDir   string // per-station index files, e.g. /var/lib/retro-cast/index
	ContentDir string // stock artifacts (snow, off-air, countdown)

	ChannelsFile string // TSV channel table
	ScheduleFile string // shows + weekly schedule JSON
	ParentalFile string // parental policy JSON
	EASFile      string // EAS config JSON
	YouTubeFile  string // station -> live channel URL JSON

	// Player
	MPVBin    string
	MPVSocket string
	MPVArgs   []string // extra args appended to the stock launch line

	// Stock artifacts
	SnowVideo        string // static noise loop for missing content
	OffAirVideo      string // sign-off/sign-on animation
	TestPatternImage string // shown while a channel stays off air
	CountdownVideo   string // fixed 61s countdown, numbers 61..0
	CrawlFont        string // font file the crawl overlay is bound to

	// Special stations
	WeatherURL         string // UDP MPEG-TS URL for the WEATHER station
	EPGMusicURL        string // background music stream for the EPG station
	BumpersStation     string // station whose index supplies bumpers
	CommercialsStation string // station whose index supplies commercials

	// External collaborators
	ResolverBin  string        // resolves a YouTube channel URL to a stream URL
	GeneratorBin string        // renders an alert descriptor to a video file
	EPGBin       string        // renders the guide image for the EPG station
	EPGImage     string        // where the guide renderer writes its frame
	EPGRefresh   time.Duration // guide re-render cadence

	// Metrics/health listener; empty disables the HTTP surface.
	MetricsAddr string

	// Player readiness window at startup.
	SocketWait time.Duration
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
func Load() *Config {
	stateDir := getEnv("RETRO_CAST_STATE", "/var/lib/retro-cast")
	configDir := getEnv("RETRO_CAST_CONFIG", "/etc/retro-cast")
	contentDir := getEnv("RETRO_CAST_CONTENT", "/var/lib/retro-cast/content")
	c := &Config{
		StateDir:   stateDir,
		ConfigDir:  configDir,
		IndexDir:   getEnv("RETRO_CAST_INDEX_DIR", filepath.Join(stateDir, "index")),
		ContentDir: contentDir,

		ChannelsFile: getEnv("RETRO_CAST_CHANNELS", filepath.Join(configDir, "channels.tsv")),
		ScheduleFile: getEnv("RETRO_CAST_SCHEDULE", filepath.Join(configDir, "schedule.json")),
		ParentalFile: getEnv("RETRO_CAST_PARENTAL", filepath.Join(configDir, "parental.json")),
		EASFile:      getEnv("RETRO_CAST_EAS", filepath.Join(configDir, "eas.json")),
		YouTubeFile:  getEnv("RETRO_CAST_YOUTUBE", filepath.Join(configDir, "youtube.json")),

		MPVBin:    getEnv("RETRO_CAST_MPV", "mpv"),
		MPVSocket: getEnv("RETRO_CAST_MPV_SOCKET", "/tmp/retro-cast-mpv.sock"),
		MPVArgs:   splitArgs(os.Getenv("RETRO_CAST_MPV_ARGS")),

		SnowVideo:        getEnv("RETRO_CAST_SNOW", filepath.Join(contentDir, "snow.mp4")),
		OffAirVideo:      getEnv("RETRO_CAST_OFFAIR", filepath.Join(contentDir, "offair.mp4")),
		TestPatternImage: getEnv("RETRO_CAST_TEST_PATTERN", filepath.Join(contentDir, "testpattern.png")),
		CountdownVideo:   getEnv("RETRO_CAST_COUNTDOWN", filepath.Join(contentDir, "countdown.mp4")),
		CrawlFont:        getEnv("RETRO_CAST_CRAWL_FONT", filepath.Join(contentDir, "crawl.ttf")),

		WeatherURL:         getEnv("RETRO_CAST_WEATHER_URL", "udp://127.0.0.1:1234"),
		EPGMusicURL:        os.Getenv("RETRO_CAST_EPG_MUSIC_URL"),
		BumpersStation:     getEnv("RETRO_CAST_BUMPERS_STATION", "BUMPERS"),
		CommercialsStation: getEnv("RETRO_CAST_COMMERCIALS_STATION", "COMMERCIALS"),

		ResolverBin:  getEnv("RETRO_CAST_RESOLVER", "yt-dlp"),
		GeneratorBin: getEnv("RETRO_CAST_GENERATOR", "retro-cast-alertgen"),
		EPGBin:       getEnv("RETRO_CAST_EPG_RENDERER", "retro-cast-epg"),
		EPGImage:     getEnv("RETRO_CAST_EPG_IMAGE", filepath.Join(stateDir, "epg.png")),
		EPGRefresh:   getEnvDuration("RETRO_CAST_EPG_REFRESH", time.Minute),

		MetricsAddr: os.Getenv("RETRO_CAST_METRICS_ADDR"),

		SocketWait: getEnvDuration("RETRO_CAST_SOCKET_WAIT", 10*time.Second),
	}
	if c.SocketWait <= 0 {
		c.SocketWait = 10 * time.Second
	}
	return c
}

// IndexFile returns the index path for a station.
func (c *Config) IndexFile(station string) string {
	return filepath.Join(c.IndexDir, station+".tsv")
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Fields(s)
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
