package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mmcdole/mediacovers/internal/cover"
	"github.com/mmcdole/mediacovers/internal/scheduler"
	"github.com/mmcdole/mediacovers/internal/store"
	"github.com/mmcdole/mediacovers/internal/visibility"
	"github.com/spf13/viper"
)

// ErrConflictingPathModes is returned when both alternate URL layouts are enabled.
var ErrConflictingPathModes = errors.New("enable_images_path and enable_graft_mode are mutually exclusive")

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Covers   CoversConfig   `mapstructure:"covers"`
	Download DownloadConfig `mapstructure:"download"`
	Viewport ViewportConfig `mapstructure:"viewport"`
	LazyLoad LazyLoadConfig `mapstructure:"lazy_load"`
	Store    StoreConfig    `mapstructure:"store"`
	Launch   LaunchConfig   `mapstructure:"launch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the listing host configuration
type ServerConfig struct {
	URL      string `mapstructure:"url"`      // e.g. http://192.168.1.10:8080
	Username string `mapstructure:"username"` // Basic auth, password is prompted
	Password string `mapstructure:"password"` // Usually left empty
	Dir      string `mapstructure:"dir"`      // Start directory
}

// CoversConfig holds the cover URL layout options
type CoversConfig struct {
	VideoThumbFormat  string `mapstructure:"video_thumb_format"` // "jpg" or "gif"
	EnableImagesPath  bool   `mapstructure:"enable_images_path"`
	ImagesCachePath   string `mapstructure:"images_cache_path"`
	ImagesPathFolders string `mapstructure:"images_path_folders"` // Comma separated, empty = all
	EnableGraftMode   bool   `mapstructure:"enable_graft_mode"`
	GraftPath         string `mapstructure:"graft_path"`
	GraftVideoCovers  bool   `mapstructure:"graft_video_covers"`
	GraftMusicCovers  bool   `mapstructure:"graft_music_covers"`
}

// DownloadConfig bounds cover fetch throughput
type DownloadConfig struct {
	MaxConcurrent  int `mapstructure:"max_concurrent"`
	DelayBetweenMS int `mapstructure:"delay_between_ms"`
	MinJitterMS    int `mapstructure:"min_jitter_ms"`
	MaxJitterMS    int `mapstructure:"max_jitter_ms"`
}

// ViewportConfig holds the visibility gate options
type ViewportConfig struct {
	Threshold         float64 `mapstructure:"threshold"`
	MaxVisibleEntries int     `mapstructure:"max_visible_entries"`
	ManualCheckOffset int     `mapstructure:"manual_check_offset"`
}

// LazyLoadConfig holds the readiness timing
type LazyLoadConfig struct {
	InitialDelayMS       int `mapstructure:"initial_delay_ms"`
	StableCheckMS        int `mapstructure:"stable_check_ms"`
	StableThreshold      int `mapstructure:"stable_threshold"`
	ForceEnableTimeoutMS int `mapstructure:"force_enable_timeout_ms"`
}

// StoreConfig holds the outcome store options
type StoreConfig struct {
	Path       string `mapstructure:"path"` // Empty = memory only
	ExpiryDays int    `mapstructure:"expiry_days"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// LaunchConfig holds the external programs for covers and media.
// Empty commands are detected.
type LaunchConfig struct {
	ViewerCommand string   `mapstructure:"viewer_command"` // e.g. "feh"
	ViewerArgs    []string `mapstructure:"viewer_args"`
	PlayerCommand string   `mapstructure:"player_command"` // e.g. "mpv"
	PlayerArgs    []string `mapstructure:"player_args"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Dir: "/",
		},
		Covers: CoversConfig{
			VideoThumbFormat: "jpg",
			ImagesCachePath:  "/images/cache",
			GraftVideoCovers: true,
			GraftMusicCovers: true,
		},
		Download: DownloadConfig{
			MaxConcurrent:  1,
			DelayBetweenMS: 300,
			MinJitterMS:    100,
			MaxJitterMS:    500,
		},
		Viewport: ViewportConfig{
			Threshold:         0.99,
			MaxVisibleEntries: 3,
			ManualCheckOffset: 10,
		},
		LazyLoad: LazyLoadConfig{
			InitialDelayMS:       1000,
			StableCheckMS:        500,
			StableThreshold:      2,
			ForceEnableTimeoutMS: 3000,
		},
		Store: StoreConfig{
			Path:       filepath.Join(defaultDataPath(), "covers.db"),
			ExpiryDays: 30,
			MaxEntries: 5000,
		},
		Logging: LoggingConfig{
			File:  filepath.Join(defaultDataPath(), "mediacovers.log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "mediacovers")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "mediacovers")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "mediacovers")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "mediacovers")
	}
}

// LoadConfig loads configuration from file and environment. An explicit file
// path replaces the default search locations.
func LoadConfig(file string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. MEDIACOVERS_SERVER_URL
	v.SetEnvPrefix("MEDIACOVERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnv registers the keys AutomaticEnv can only see once they are known.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.url", "server.username", "server.password", "server.dir",
		"store.path", "logging.file", "logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate rejects option combinations the cover layout cannot express.
func (c *Config) Validate() error {
	if c.Covers.EnableImagesPath && c.Covers.EnableGraftMode {
		return ErrConflictingPathModes
	}
	switch strings.ToLower(c.Covers.VideoThumbFormat) {
	case "", "jpg", "gif":
	default:
		return fmt.Errorf("video_thumb_format must be jpg or gif, got %q", c.Covers.VideoThumbFormat)
	}
	if c.Download.MaxConcurrent < 1 {
		return fmt.Errorf("download.max_concurrent must be at least 1")
	}
	if c.Download.MinJitterMS > c.Download.MaxJitterMS {
		return fmt.Errorf("download.min_jitter_ms exceeds max_jitter_ms")
	}
	if c.Viewport.Threshold <= 0 || c.Viewport.Threshold > 1 {
		return fmt.Errorf("viewport.threshold must be in (0, 1]")
	}
	if c.Store.ExpiryDays < 0 || c.Store.MaxEntries < 0 {
		return fmt.Errorf("store limits must not be negative")
	}
	return nil
}

// IsConfigured returns true if the server URL is set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != ""
}

// PathConfig maps the cover options to the candidate generator's snapshot.
func (c *Config) PathConfig() cover.PathConfig {
	pc := cover.PathConfig{
		Mode:             cover.ModeSingleRoot,
		PreferredFormat:  strings.ToLower(c.Covers.VideoThumbFormat),
		ImagesCachePath:  c.Covers.ImagesCachePath,
		GraftPath:        c.Covers.GraftPath,
		GraftVideoCovers: c.Covers.GraftVideoCovers,
		GraftMusicCovers: c.Covers.GraftMusicCovers,
	}
	if pc.PreferredFormat == "" {
		pc.PreferredFormat = "jpg"
	}
	switch {
	case c.Covers.EnableImagesPath:
		pc.Mode = cover.ModeDualPath
	case c.Covers.EnableGraftMode:
		pc.Mode = cover.ModeGraft
	}
	for _, f := range strings.Split(c.Covers.ImagesPathFolders, ",") {
		if f = strings.TrimSpace(f); f != "" {
			pc.ImagesPathFolders = append(pc.ImagesPathFolders, f)
		}
	}
	return pc
}

// SchedulerConfig returns the download throughput policy.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxConcurrent: c.Download.MaxConcurrent,
		DelayBetween:  ms(c.Download.DelayBetweenMS),
		MinJitter:     ms(c.Download.MinJitterMS),
		MaxJitter:     ms(c.Download.MaxJitterMS),
	}
}

// GateConfig returns the visibility gate policy. Admission jitter reuses the
// download jitter bounds.
func (c *Config) GateConfig() visibility.Config {
	return visibility.Config{
		Threshold:   c.Viewport.Threshold,
		MaxAdmitted: c.Viewport.MaxVisibleEntries,
		Margin:      float64(c.Viewport.ManualCheckOffset),
		MinJitter:   ms(c.Download.MinJitterMS),
		MaxJitter:   ms(c.Download.MaxJitterMS),
	}
}

// ReadinessConfig returns the listing stability policy.
func (c *Config) ReadinessConfig() visibility.ReadinessConfig {
	return visibility.ReadinessConfig{
		InitialDelay:    ms(c.LazyLoad.InitialDelayMS),
		StableInterval:  ms(c.LazyLoad.StableCheckMS),
		StableThreshold: c.LazyLoad.StableThreshold,
		ForceEnable:     ms(c.LazyLoad.ForceEnableTimeoutMS),
	}
}

// StoreOptions returns the outcome store bounds.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		ExpiryDays: c.Store.ExpiryDays,
		MaxEntries: c.Store.MaxEntries,
	}
}

// StorePath returns the store file with ~ expanded.
func (c *Config) StorePath() string {
	return expandHome(c.Store.Path)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
