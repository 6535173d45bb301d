// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

// mergeEnvConfig applies MCFLEET_* variables on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	l.mergeEnvCore(cfg)
	l.mergeEnvOps(cfg)
	l.mergeEnvStore(cfg)
	l.mergeEnvSupervisor(cfg)
	l.mergeEnvConsole(cfg)
	l.mergeEnvCatalog(cfg)
	l.mergeEnvTelemetry(cfg)
}

func (l *Loader) mergeEnvCore(cfg *AppConfig) {
	// Consumed by the command line when choosing the config file.
	l.ConsumedEnvKeys["MCFLEET_CONFIG"] = struct{}{}
	cfg.DataDir = l.envString("MCFLEET_DATA_DIR", cfg.DataDir)
	cfg.Log.Level = l.envString("MCFLEET_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("MCFLEET_LOG_SERVICE", cfg.Log.Service)
	cfg.Bus.QueueSize = l.envInt("MCFLEET_BUS_QUEUE_SIZE", cfg.Bus.QueueSize)
	cfg.Bus.RequestTimeout = l.envDuration("MCFLEET_BUS_REQUEST_TIMEOUT", cfg.Bus.RequestTimeout)
}

func (l *Loader) mergeEnvOps(cfg *AppConfig) {
	cfg.Ops.Enabled = l.envBool("MCFLEET_OPS_ENABLED", cfg.Ops.Enabled)
	cfg.Ops.ListenAddr = l.envString("MCFLEET_OPS_LISTEN", cfg.Ops.ListenAddr)
	cfg.Ops.RateLimit = l.envInt("MCFLEET_OPS_RATE_LIMIT", cfg.Ops.RateLimit)
}

func (l *Loader) mergeEnvStore(cfg *AppConfig) {
	cfg.Store.Backend = l.envString("MCFLEET_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("MCFLEET_STORE_PATH", cfg.Store.Path)
	cfg.Workloads.AllowedRoots = l.envList("MCFLEET_ALLOWED_ROOTS", cfg.Workloads.AllowedRoots)
}

func (l *Loader) mergeEnvSupervisor(cfg *AppConfig) {
	cfg.Supervisor.StopGrace = l.envDuration("MCFLEET_STOP_GRACE", cfg.Supervisor.StopGrace)
	cfg.Supervisor.KillGrace = l.envDuration("MCFLEET_KILL_GRACE", cfg.Supervisor.KillGrace)
	cfg.Supervisor.DrainTimeout = l.envDuration("MCFLEET_DRAIN_TIMEOUT", cfg.Supervisor.DrainTimeout)
	cfg.Supervisor.StopCommand = l.envString("MCFLEET_STOP_COMMAND", cfg.Supervisor.StopCommand)
	cfg.Supervisor.CrashLines = l.envInt("MCFLEET_CRASH_LINES", cfg.Supervisor.CrashLines)
	cfg.Launch.Env = l.envList("MCFLEET_LAUNCH_ENV", cfg.Launch.Env)
}

func (l *Loader) mergeEnvConsole(cfg *AppConfig) {
	cfg.Console.RulesFile = l.envString("MCFLEET_CONSOLE_RULES", cfg.Console.RulesFile)
	cfg.Console.HistoryLines = l.envInt("MCFLEET_CONSOLE_HISTORY", cfg.Console.HistoryLines)
	cfg.Console.CommandRate = l.envFloat("MCFLEET_CONSOLE_RATE", cfg.Console.CommandRate)
	cfg.Console.CommandBurst = l.envInt("MCFLEET_CONSOLE_BURST", cfg.Console.CommandBurst)
}

func (l *Loader) mergeEnvCatalog(cfg *AppConfig) {
	c := &cfg.Catalog
	c.Source = l.envString("MCFLEET_CATALOG_SOURCE", c.Source)
	c.ManifestURL = l.envString("MCFLEET_CATALOG_MANIFEST_URL", c.ManifestURL)
	c.TTL = l.envDuration("MCFLEET_CATALOG_TTL", c.TTL)
	c.FetchTimeout = l.envDuration("MCFLEET_CATALOG_FETCH_TIMEOUT", c.FetchTimeout)
	c.RefreshSchedule = l.envString("MCFLEET_CATALOG_REFRESH", c.RefreshSchedule)

	c.Cache.Backend = l.envString("MCFLEET_CATALOG_CACHE", c.Cache.Backend)
	c.Cache.Addr = l.envString("MCFLEET_REDIS_ADDR", c.Cache.Addr)
	c.Cache.Password = l.envString("MCFLEET_REDIS_PASSWORD", c.Cache.Password)
	c.Cache.DB = l.envInt("MCFLEET_REDIS_DB", c.Cache.DB)
	c.Cache.Prefix = l.envString("MCFLEET_REDIS_PREFIX", c.Cache.Prefix)
}

func (l *Loader) mergeEnvTelemetry(cfg *AppConfig) {
	t := &cfg.Telemetry
	t.Enabled = l.envBool("MCFLEET_TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = l.envString("MCFLEET_OTLP_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("MCFLEET_OTLP_ENDPOINT", t.Endpoint)
	t.Insecure = l.envBool("MCFLEET_OTLP_INSECURE", t.Insecure)
	t.SampleRate = l.envFloat("MCFLEET_TRACE_SAMPLE_RATE", t.SampleRate)
	t.Environment = l.envString("MCFLEET_ENVIRONMENT", t.Environment)
}
