// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration. Precedence is
// ENV > file > defaults; the file is parsed strictly.
package config

import (
	"path/filepath"
	"time"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "MCFLEET_"

const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
	StoreFile   = "file"
	StoreMemory = "memory"

	CatalogHTTP   = "http"
	CatalogStatic = "static"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`
	DataDir string `yaml:"data_dir"`

	Log        LogConfig        `yaml:"log"`
	Ops        OpsConfig        `yaml:"ops"`
	Bus        BusConfig        `yaml:"bus"`
	Store      StoreConfig      `yaml:"store"`
	Workloads  WorkloadsConfig  `yaml:"workloads"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Launch     LaunchConfig     `yaml:"launch"`
	Console    ConsoleConfig    `yaml:"console"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// OpsConfig controls the metrics and health listener.
type OpsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

type BusConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StoreConfig selects the workload store. An empty Path is derived from
// DataDir.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type WorkloadsConfig struct {
	AllowedRoots []string `yaml:"allowed_roots"`
}

type SupervisorConfig struct {
	StopGrace    time.Duration `yaml:"stop_grace"`
	KillGrace    time.Duration `yaml:"kill_grace"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	StopCommand  string        `yaml:"stop_command"`
	CrashLines   int           `yaml:"crash_lines"`
}

// LaunchConfig overrides launch command templates per loader kind. Keys
// missing here keep their built-in template.
type LaunchConfig struct {
	Commands map[string]string `yaml:"commands"`
	Env      []string          `yaml:"env"`
}

type ConsoleConfig struct {
	RulesFile    string  `yaml:"rules_file"`
	HistoryLines int     `yaml:"history_lines"`
	CommandRate  float64 `yaml:"command_rate"`
	CommandBurst int     `yaml:"command_burst"`
}

type CatalogConfig struct {
	Source           string            `yaml:"source"`
	ManifestURL      string            `yaml:"manifest_url"`
	LoaderURLs       map[string]string `yaml:"loader_urls"`
	UserAgent        string            `yaml:"user_agent"`
	TTL              time.Duration     `yaml:"ttl"`
	FetchTimeout     time.Duration     `yaml:"fetch_timeout"`
	RefreshSchedule  string            `yaml:"refresh_schedule"`
	BreakerThreshold int               `yaml:"breaker_threshold"`
	BreakerReset     time.Duration     `yaml:"breaker_reset"`
	Static           StaticCatalog     `yaml:"static"`
	Cache            CacheConfig       `yaml:"cache"`
}

// StaticCatalog is served when Source is "static".
type StaticCatalog struct {
	Engines []string `yaml:"engines"`
	// Loaders maps loader kind to engine version to builds.
	Loaders map[string]map[string][]StaticBuild `yaml:"loaders"`
}

type StaticBuild struct {
	Version     string `yaml:"version"`
	Recommended bool   `yaml:"recommended"`
	Latest      bool   `yaml:"latest"`
	Bugged      bool   `yaml:"bugged"`
}

type CacheConfig struct {
	Backend  string `yaml:"backend"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
	Environment string  `yaml:"environment"`
}

// Defaults returns the configuration used when neither file nor
// environment set a value.
func Defaults() AppConfig {
	return AppConfig{
		DataDir: "/var/lib/mcfleet",
		Log:     LogConfig{Level: "info", Service: "mcfleetd"},
		Ops:     OpsConfig{Enabled: true, ListenAddr: "127.0.0.1:9470", RateLimit: 120},
		Bus:     BusConfig{QueueSize: 256, RequestTimeout: 60 * time.Second},
		Store:   StoreConfig{Backend: StoreSQLite},
		Supervisor: SupervisorConfig{
			StopGrace:    30 * time.Second,
			KillGrace:    5 * time.Second,
			DrainTimeout: 2 * time.Second,
			StopCommand:  "stop",
			CrashLines:   20,
		},
		Console: ConsoleConfig{HistoryLines: 500, CommandRate: 20, CommandBurst: 40},
		Catalog: CatalogConfig{
			Source:           CatalogHTTP,
			ManifestURL:      "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json",
			UserAgent:        "mcfleetd",
			TTL:              24 * time.Hour,
			FetchTimeout:     20 * time.Second,
			RefreshSchedule:  "@every 6h",
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
			Cache:            CacheConfig{Backend: CacheMemory, Prefix: "mcfleet:"},
		},
		Telemetry: TelemetryConfig{Exporter: "grpc", Endpoint: "localhost:4317", SampleRate: 1, Environment: "production"},
	}
}

// StorePath returns the configured store path, or the backend's default
// location below DataDir.
func (c AppConfig) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	switch c.Store.Backend {
	case StoreBadger:
		return filepath.Join(c.DataDir, "badger")
	case StoreFile:
		return filepath.Join(c.DataDir, "workloads.yaml")
	default:
		return filepath.Join(c.DataDir, "workloads.db")
	}
}
