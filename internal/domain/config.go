package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Download DownloadConfig `mapstructure:"download"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DownloadConfig contains download output configuration
type DownloadConfig struct {
	BaseDir  string `mapstructure:"base_dir"`
	LogsDir  string `mapstructure:"logs_dir"`
	LockFile string `mapstructure:"lock_file"`
}

// WorkerConfig contains the download worker configuration
type WorkerConfig struct {
	MaxConcurrentDownloads int           `mapstructure:"max_concurrent_downloads"`
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	MaxRetries             int           `mapstructure:"max_retries"`
	RetryBackoffBase       time.Duration `mapstructure:"retry_backoff_base"`
	RetryBackoffMax        time.Duration `mapstructure:"retry_backoff_max"`
	ProgressWriteInterval  time.Duration `mapstructure:"progress_write_interval"`
	AutoStart              bool          `mapstructure:"auto_start"`
}

// FetcherConfig contains yt-dlp configuration
type FetcherConfig struct {
	Binary         string `mapstructure:"binary"`
	Format         string `mapstructure:"format"`
	OutputTemplate string `mapstructure:"output_template"`
	CookieFile     string `mapstructure:"cookie_file"`
	SocketTimeout  int    `mapstructure:"socket_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8001,
		},
		Database: DatabaseConfig{
			Path: "$HOME/.classroom-downloader/classroom.db",
		},
		Download: DownloadConfig{
			BaseDir:  "$HOME/.classroom-downloader/downloads",
			LogsDir:  "$HOME/.classroom-downloader/logs",
			LockFile: "$HOME/.classroom-downloader/worker.lock",
		},
		Worker: WorkerConfig{
			MaxConcurrentDownloads: 5,
			PollInterval:           5 * time.Second,
			MaxRetries:             3,
			RetryBackoffBase:       4 * time.Second,
			RetryBackoffMax:        5 * time.Minute,
			ProgressWriteInterval:  time.Second,
			AutoStart:              true,
		},
		Fetcher: FetcherConfig{
			Binary:         "yt-dlp",
			Format:         "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
			OutputTemplate: "%(id)s.%(ext)s",
			CookieFile:     "",
			SocketTimeout:  30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
