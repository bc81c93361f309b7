package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

func loadFrom(t *testing.T, dir string) *Config {
	t.Helper()
	Reload()
	t.Cleanup(Reload)
	if err := SetConfigPath(dir); err != nil {
		t.Fatalf("SetConfigPath: %v", err)
	}
	c := &Config{}
	c.Path = dir
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err == nil {
		if err := json.Unmarshal(data, c); err != nil {
			t.Fatalf("unmarshal config: %v", err)
		}
	}
	c.setDefaults()
	return c
}

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	c := loadFrom(t, dir)

	if c.ListenPort != 6881 {
		t.Errorf("ListenPort = %d, want 6881", c.ListenPort)
	}
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", c.LogLevel)
	}
	if c.DownloadPath != filepath.Join(dir, "downloads") {
		t.Errorf("DownloadPath = %q", c.DownloadPath)
	}
	if c.Theme != "dark" {
		t.Errorf("Theme = %q, want dark", c.Theme)
	}
	if c.RefreshInterval != 1 {
		t.Errorf("RefreshInterval = %d, want 1", c.RefreshInterval)
	}
	if err := ValidateConfig(c); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadWithSchedules(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"listen_port": 7000,
		"download_limit": 500,
		"bandwidth_schedules": [
			{"start": "23:00", "end": "07:00", "dl": 200, "ul": 50}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	c := loadFrom(t, dir)
	if c.ListenPort != 7000 {
		t.Errorf("ListenPort = %d, want 7000", c.ListenPort)
	}
	if c.DownloadLimit != 500 {
		t.Errorf("DownloadLimit = %d, want 500", c.DownloadLimit)
	}
	if len(c.BandwidthSchedules) != 1 {
		t.Fatalf("schedules = %d, want 1", len(c.BandwidthSchedules))
	}
	e := c.BandwidthSchedules[0]
	if e.Start != "23:00" || e.End != "07:00" || e.Download != 200 || e.Upload != 50 {
		t.Errorf("schedule entry = %+v", e)
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		return &Config{
			ListenPort:      6881,
			MaxConnections:  55,
			RefreshInterval: 1,
			DownloadPath:    "/tmp/downloads",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"privileged port", func(c *Config) { c.ListenPort = 80 }, true},
		{"port too high", func(c *Config) { c.ListenPort = 70000 }, true},
		{"no download path", func(c *Config) { c.DownloadPath = "" }, true},
		{"negative download limit", func(c *Config) { c.DownloadLimit = -1 }, true},
		{"zero refresh interval", func(c *Config) { c.RefreshInterval = 0 }, true},
		{"schedule missing end", func(c *Config) {
			c.BandwidthSchedules = []ScheduleEntry{{Start: "23:00"}}
		}, true},
		{"schedule negative limit", func(c *Config) {
			c.BandwidthSchedules = []ScheduleEntry{{Start: "23:00", End: "07:00", Download: -5}}
		}, true},
		{"valid schedule", func(c *Config) {
			c.BandwidthSchedules = []ScheduleEntry{{Start: "23:00", End: "07:00", Download: 200, Upload: 50}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := ValidateConfig(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConcurrentGetAndReload(t *testing.T) {
	dir := t.TempDir()
	Reload()
	t.Cleanup(Reload)
	if err := SetConfigPath(dir); err != nil {
		t.Fatalf("SetConfigPath: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if c := Get(); c.Path != dir {
					t.Errorf("Path = %q, want %q", c.Path, dir)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			Reload()
		}
	}()
	wg.Wait()
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := &Config{Path: dir}
	c.setDefaults()
	c.DownloadLimit = 300
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := loadFrom(t, dir)
	if loaded.DownloadLimit != 300 {
		t.Errorf("DownloadLimit after reload = %d, want 300", loaded.DownloadLimit)
	}
}
