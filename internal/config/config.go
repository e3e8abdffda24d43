// Package config reads job settings from a .env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	DefaultOutputDir       = "public/videos"
	DefaultManifestPath    = "public/videos.json"
	DefaultPublicPrefix    = "public/videos"
	DefaultProgressTimeout = 10 * time.Second
	MaxProgressTimeout     = 15 * time.Second
)

// Audio formats for the standalone audio file.
const (
	AudioMP3  = "mp3"
	AudioM4A  = "m4a"
	AudioNone = "none"
)

// Metadata sources.
const (
	SourceYtDlp   = "ytdlp"
	SourceYouTube = "youtube"
	SourceWebpage = "webpage"
	SourceApify   = "apify"
	SourceAuto    = "auto"
)

// Config is the effective configuration of one job run.
type Config struct {
	JobID      string
	URL        string
	BackendURL string
	Secret     string
	Cookies    string

	OutputDir    string
	ManifestPath string
	PublicPrefix string
	WorkDir      string

	YtDlpPath      string
	FFmpegPath     string
	AudioFormat    string
	MetadataSource string
	ApifyToken     string
	ApifyBaseURL   string

	ProgressTimeout time.Duration

	LogLevel  string
	LogFormat string

	Redis RedisConfig
	Minio MinioConfig
}

// RedisConfig enables the Redis status mirror when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// MinioConfig enables object storage publishing when Endpoint is set.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// Enabled reports whether an object storage endpoint was configured.
func (c MinioConfig) Enabled() bool { return c.Endpoint != "" }

// Error is a configuration failure. Missing lists required keys that were
// not provided.
type Error struct {
	Missing []string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case len(e.Missing) > 0 && e.Err != nil:
		return fmt.Sprintf("missing required configuration: %s; %v", strings.Join(e.Missing, ", "), e.Err)
	case len(e.Missing) > 0:
		return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
	case e.Err != nil:
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	default:
		return "invalid configuration"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsConfigError reports whether err is (or wraps) a *Error.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// LoadDotEnv loads path (".env" when empty) into the process environment.
// A missing file is not an error; existing variables are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from environment variables via getenv.
func FromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	return Config{
		JobID:      strings.TrimSpace(getenv("JOB_ID")),
		URL:        strings.TrimSpace(getenv("YOUTUBE_URL")),
		BackendURL: strings.TrimRight(strings.TrimSpace(getenv("BACKEND_URL")), "/"),
		Secret:     getenv("INTERNAL_SECRET"),
		Cookies:    getenv("YOUTUBE_COOKIES"),

		OutputDir:    valueOrDefault(getenv("OUTPUT_DIR"), DefaultOutputDir),
		ManifestPath: valueOrDefault(getenv("MANIFEST_PATH"), DefaultManifestPath),
		PublicPrefix: valueOrDefault(getenv("PUBLIC_PREFIX"), DefaultPublicPrefix),
		WorkDir:      valueOrDefault(getenv("WORK_DIR"), os.TempDir()),

		YtDlpPath:      valueOrDefault(getenv("YTDLP_PATH"), "yt-dlp"),
		FFmpegPath:     valueOrDefault(getenv("FFMPEG_PATH"), "ffmpeg"),
		AudioFormat:    strings.ToLower(valueOrDefault(getenv("AUDIO_FORMAT"), AudioMP3)),
		MetadataSource: strings.ToLower(valueOrDefault(getenv("METADATA_SOURCE"), SourceYtDlp)),
		ApifyToken:     strings.TrimSpace(getenv("APIFY_API_TOKEN")),
		ApifyBaseURL:   strings.TrimSpace(getenv("APIFY_BASE_URL")),

		ProgressTimeout: parseDuration(getenv("PROGRESS_TIMEOUT"), DefaultProgressTimeout),

		LogLevel:  valueOrDefault(getenv("LOG_LEVEL"), "info"),
		LogFormat: valueOrDefault(getenv("LOG_FORMAT"), "text"),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR")),
			Password: getenv("REDIS_PASSWORD"),
			DB:       parseInt(getenv("REDIS_DB"), 0),
		},
		Minio: MinioConfig{
			Endpoint:  strings.TrimSpace(getenv("MINIO_ENDPOINT")),
			AccessKey: getenv("MINIO_ACCESS_KEY"),
			SecretKey: getenv("MINIO_SECRET_KEY"),
			Bucket:    valueOrDefault(getenv("MINIO_BUCKET"), "videos"),
			UseSSL:    strings.EqualFold(getenv("MINIO_USE_SSL"), "true"),
			Prefix:    strings.Trim(getenv("MINIO_PREFIX"), "/"),
		},
	}
}

// BindFlags registers command-line overrides for the most common settings.
// Flags left at their zero value keep the environment's value.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.URL, "url", c.URL, "video URL to download")
	fs.StringVar(&c.JobID, "job-id", c.JobID, "job identifier reported to the backend")
	fs.StringVar(&c.BackendURL, "backend", c.BackendURL, "backend base URL for progress updates")
	fs.StringVar(&c.OutputDir, "output-dir", c.OutputDir, "directory for finished media files")
	fs.StringVar(&c.ManifestPath, "manifest", c.ManifestPath, "path of the JSON manifest")
	fs.StringVar(&c.AudioFormat, "audio-format", c.AudioFormat, "standalone audio format: mp3, m4a or none")
	fs.StringVar(&c.MetadataSource, "metadata", c.MetadataSource, "metadata source: ytdlp, youtube, webpage, apify or auto")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
}

// Finalize fills generated defaults and validates the configuration.
func (c *Config) Finalize() error {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	c.AudioFormat = strings.ToLower(strings.TrimSpace(c.AudioFormat))
	c.MetadataSource = strings.ToLower(strings.TrimSpace(c.MetadataSource))
	if c.JobID == "" {
		c.JobID = uuid.New().String()
	}

	var missing []string
	if strings.TrimSpace(c.URL) == "" {
		missing = append(missing, "YOUTUBE_URL")
	}
	if c.BackendURL != "" && c.Secret == "" {
		missing = append(missing, "INTERNAL_SECRET")
	}
	if c.Minio.Enabled() {
		if c.Minio.AccessKey == "" {
			missing = append(missing, "MINIO_ACCESS_KEY")
		}
		if c.Minio.SecretKey == "" {
			missing = append(missing, "MINIO_SECRET_KEY")
		}
	}

	var errs []error
	switch c.AudioFormat {
	case AudioMP3, AudioM4A, AudioNone:
	default:
		errs = append(errs, fmt.Errorf("unsupported AUDIO_FORMAT %q", c.AudioFormat))
	}
	switch c.MetadataSource {
	case SourceYtDlp, SourceYouTube, SourceWebpage, SourceAuto:
	case SourceApify:
		if c.ApifyToken == "" {
			missing = append(missing, "APIFY_API_TOKEN")
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported METADATA_SOURCE %q", c.MetadataSource))
	}
	if c.ProgressTimeout <= 0 {
		c.ProgressTimeout = DefaultProgressTimeout
	}
	if c.ProgressTimeout < time.Second {
		c.ProgressTimeout = time.Second
	}
	if c.ProgressTimeout > MaxProgressTimeout {
		c.ProgressTimeout = MaxProgressTimeout
	}

	if len(missing) > 0 || len(errs) > 0 {
		return &Error{Missing: missing, Err: errors.Join(errs...)}
	}
	return nil
}

// AudioExt returns the file extension for the standalone audio file, or ""
// when no audio file is produced.
func (c Config) AudioExt() string {
	if c.AudioFormat == AudioNone {
		return ""
	}
	return c.AudioFormat
}

func valueOrDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func parseInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func parseDuration(v string, def time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
