package config

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

var (
	mu         sync.RWMutex
	instance   *Config
	configPath string
)

// ScheduleEntry is one bandwidth schedule window. Times are local 24h
// "HH:MM"; limits are KiB/s with 0 meaning unlimited. A window whose
// start is later than its end wraps past midnight.
type ScheduleEntry struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Download int    `json:"dl"`
	Upload   int    `json:"ul"`
}

type Auth struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type Config struct {
	LogLevel string `json:"log_level,omitempty"`

	// Engine
	ListenPort            int  `json:"listen_port,omitempty"`
	MaxConnections        int  `json:"max_connections,omitempty"`
	DisableDHT            bool `json:"disable_dht,omitempty"`
	DisableUTP            bool `json:"disable_utp,omitempty"`
	DisablePortForwarding bool `json:"disable_port_forwarding,omitempty"`
	DisableIPv6           bool `json:"disable_ipv6,omitempty"`
	DisableSeeding        bool `json:"disable_seeding,omitempty"`

	// Speed limits in KiB/s, 0 = unlimited
	DownloadLimit int `json:"download_limit,omitempty"`
	UploadLimit   int `json:"upload_limit,omitempty"`

	BandwidthSchedules []ScheduleEntry `json:"bandwidth_schedules,omitempty"`

	// Paths
	DownloadPath string `json:"download_path,omitempty"`
	WatchDir     string `json:"watch_dir,omitempty"`

	// UI
	UIPort          string `json:"ui_port,omitempty"`
	Theme           string `json:"theme,omitempty"`
	RefreshInterval int    `json:"refresh_interval,omitempty"` // seconds

	// Proxy for fetching .torrent files (socks5://host:port)
	Proxy string `json:"proxy,omitempty"`

	UseAuth bool   `json:"use_auth,omitempty"`
	Auth    *Auth  `json:"-"`
	Path    string `json:"-"` // data folder holding config, db, logs
}

func (c *Config) JsonFile() string {
	return filepath.Join(c.Path, "config.json")
}

func (c *Config) AuthFile() string {
	return filepath.Join(c.Path, "auth.json")
}

func (c *Config) DBFile() string {
	return filepath.Join(c.Path, "session.db")
}

func (c *Config) SpoolDir() string {
	return filepath.Join(c.Path, "spool")
}

func (c *Config) loadConfig() error {
	if configPath == "" {
		return fmt.Errorf("config path not set")
	}
	c.Path = configPath

	file, err := os.ReadFile(c.JsonFile())
	if err == nil {
		if err := json.Unmarshal(file, &c); err != nil {
			return fmt.Errorf("error unmarshaling config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	c.setDefaults()

	if err := ValidateConfig(c); err != nil {
		return err
	}

	if err := c.ensureDirectories(); err != nil {
		return err
	}

	c.Auth = c.GetAuth()

	// First run: write the defaulted config back out
	if os.IsNotExist(err) {
		return c.Save()
	}
	return nil
}

func (c *Config) setDefaults() {
	c.LogLevel = cmp.Or(c.LogLevel, "info")
	c.ListenPort = cmp.Or(c.ListenPort, 6881)
	c.MaxConnections = cmp.Or(c.MaxConnections, 55)
	c.DownloadPath = cmp.Or(c.DownloadPath, filepath.Join(c.Path, "downloads"))
	c.UIPort = cmp.Or(c.UIPort, "8282")
	c.Theme = cmp.Or(c.Theme, "dark")
	c.RefreshInterval = cmp.Or(c.RefreshInterval, 1)
}

func (c *Config) ensureDirectories() error {
	dirs := []string{c.Path, c.DownloadPath, c.SpoolDir()}
	if c.WatchDir != "" {
		dirs = append(dirs, c.WatchDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func validateLimits(c *Config) error {
	if c.DownloadLimit < 0 {
		return errors.New("download limit cannot be negative")
	}
	if c.UploadLimit < 0 {
		return errors.New("upload limit cannot be negative")
	}
	return nil
}

func validateSchedules(entries []ScheduleEntry) error {
	for i, e := range entries {
		if e.Start == "" || e.End == "" {
			return fmt.Errorf("schedule entry %d is missing start or end", i)
		}
		if e.Download < 0 || e.Upload < 0 {
			return fmt.Errorf("schedule entry %d has a negative limit", i)
		}
	}
	return nil
}

func ValidateConfig(config *Config) error {
	if config.ListenPort < 1024 || config.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port %d", config.ListenPort)
	}
	if config.MaxConnections < 1 {
		return fmt.Errorf("invalid max_connections %d", config.MaxConnections)
	}
	if config.RefreshInterval < 1 {
		return fmt.Errorf("invalid refresh_interval %d", config.RefreshInterval)
	}
	if config.DownloadPath == "" {
		return errors.New("download path is required")
	}

	if err := validateLimits(config); err != nil {
		return fmt.Errorf("limits validation error: %w", err)
	}

	if err := validateSchedules(config.BandwidthSchedules); err != nil {
		return fmt.Errorf("schedule validation error: %w", err)
	}

	return nil
}

func SetConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	mu.Lock()
	configPath = abs
	mu.Unlock()
	return nil
}

func Get() *Config {
	mu.RLock()
	cfg := instance
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		cfg := &Config{}
		if err := cfg.loadConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}
		instance = cfg
	}
	return instance
}

func (c *Config) GetAuth() *Auth {
	if !c.UseAuth {
		return nil
	}
	if c.Auth == nil {
		c.Auth = &Auth{}
		if _, err := os.Stat(c.AuthFile()); err == nil {
			file, err := os.ReadFile(c.AuthFile())
			if err == nil {
				_ = json.Unmarshal(file, c.Auth)
			}
		}
	}
	return c.Auth
}

func (c *Config) SaveAuth(auth *Auth) error {
	c.Auth = auth
	data, err := json.Marshal(auth)
	if err != nil {
		return err
	}
	return os.WriteFile(c.AuthFile(), data, 0644)
}

func (c *Config) NeedsAuth() bool {
	if c.UseAuth {
		return c.GetAuth().Username == ""
	}
	return false
}

func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.JsonFile(), data, 0644)
}

// Reload drops the cached configuration so the next Get reads from disk.
func Reload() {
	mu.Lock()
	instance = nil
	mu.Unlock()
}
