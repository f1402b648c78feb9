package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Download   DownloadConfig   `mapstructure:"download"`
	Strategies StrategiesConfig `mapstructure:"strategies"`
	Compress   CompressConfig   `mapstructure:"compress"`
	History    HistoryConfig    `mapstructure:"history"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains request-level download settings
type DownloadConfig struct {
	TempRoot         string        `mapstructure:"temp_root"`
	OutputDir        string        `mapstructure:"output_dir"`
	SizeBudgetBytes  int64         `mapstructure:"size_budget_bytes"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	CancelGrace      time.Duration `mapstructure:"cancel_grace"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// StrategiesConfig controls which acquisition strategies run and how
type StrategiesConfig struct {
	PackageEnabled bool          `mapstructure:"package_enabled"`
	CookieEnabled  bool          `mapstructure:"cookie_enabled"`
	APIEnabled     bool          `mapstructure:"api_enabled"`
	YTDLPBinary    string        `mapstructure:"ytdlp_binary"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBase      time.Duration `mapstructure:"retry_base"`
	RetryCap       time.Duration `mapstructure:"retry_cap"`
	TikTokAPI      string        `mapstructure:"tiktok_api"`
	FacebookAPI    string        `mapstructure:"facebook_api"`
	TwitterAPI     string        `mapstructure:"twitter_api"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CompressionLevel is one step in the descending re-encode ladder
type CompressionLevel struct {
	TargetHeight int    `mapstructure:"target_height"`
	VideoBitrate string `mapstructure:"video_bitrate"`
	AudioBitrate string `mapstructure:"audio_bitrate"`
	CRF          int    `mapstructure:"crf"`
	Preset       string `mapstructure:"preset"`
}

// CompressConfig controls the size-budget transcoding pipeline
type CompressConfig struct {
	FFmpegBinary     string             `mapstructure:"ffmpeg_binary"`
	WorkerSlots      int64              `mapstructure:"worker_slots"`
	FastPassCutoff   int64              `mapstructure:"fast_pass_cutoff"`
	FastPassCRF      int                `mapstructure:"fast_pass_crf"`
	FastPassPreset   string             `mapstructure:"fast_pass_preset"`
	FastPassAudio    string             `mapstructure:"fast_pass_audio"`
	Levels           []CompressionLevel `mapstructure:"levels"`
	TimeoutPerInputG time.Duration      `mapstructure:"timeout_per_gb"`
	TimeoutCeiling   time.Duration      `mapstructure:"timeout_ceiling"`
}

// HistoryConfig controls the terminal-record store
type HistoryConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// PlatformCookies holds raw cookie name/value pairs for one platform
type PlatformCookies struct {
	Domain  string            `mapstructure:"domain"`
	Cookies map[string]string `mapstructure:"cookies"`
}

// AuthConfig supplies per-platform credential bundles and controls the
// optional browser cookie-store fallback.
type AuthConfig struct {
	Platforms       map[string]PlatformCookies `mapstructure:"platforms"`
	BrowserFallback bool                       `mapstructure:"browser_fallback"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values. The numeric
// thresholds here (size cutoffs, throttle intervals, retry counts, ladder
// presets) are tunable defaults carried over from observed behavior, not
// invariants.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			TempRoot:         "", // os.TempDir when empty
			OutputDir:        "$HOME/.media-fetch/downloads",
			SizeBudgetBytes:  50 * 1024 * 1024,
			RequestTimeout:   15 * time.Minute,
			CancelGrace:      2 * time.Second,
			ProgressInterval: 1200 * time.Millisecond,
		},
		Strategies: StrategiesConfig{
			PackageEnabled: true,
			CookieEnabled:  true,
			APIEnabled:     true,
			YTDLPBinary:    "yt-dlp",
			MaxRetries:     3,
			RetryBase:      1 * time.Second,
			RetryCap:       10 * time.Second,
			TikTokAPI:      "https://www.tikwm.com/api/?url=",
			FacebookAPI:    "https://myapi-2f5b.onrender.com/fbvideo/search?url=",
			TwitterAPI:     "https://twitsave.com/info?url=",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Compress: CompressConfig{
			FFmpegBinary:   "ffmpeg",
			WorkerSlots:    2,
			FastPassCutoff: 100 * 1024 * 1024,
			FastPassCRF:    30,
			FastPassPreset: "superfast",
			FastPassAudio:  "64k",
			Levels: []CompressionLevel{
				{TargetHeight: 720, VideoBitrate: "1000k", AudioBitrate: "96k", CRF: 28, Preset: "fast"},
				{TargetHeight: 480, VideoBitrate: "600k", AudioBitrate: "80k", CRF: 30, Preset: "faster"},
				{TargetHeight: 360, VideoBitrate: "400k", AudioBitrate: "64k", CRF: 32, Preset: "veryfast"},
			},
			TimeoutPerInputG: 5 * time.Minute,
			TimeoutCeiling:   10 * time.Minute,
		},
		History: HistoryConfig{
			DatabasePath: "$HOME/.media-fetch/history.db",
		},
		Auth: AuthConfig{
			Platforms:       map[string]PlatformCookies{},
			BrowserFallback: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
