package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Uploads
		Telemetry
		Enrichment
		History
		Tasks
		Cleanup
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Uploads struct {
		Dir string // Directory for temporary upload files
	}
	Telemetry struct {
		ActivityLogCap int           // Max retained activity entries per job (default: 25)
		ErrorLogCap    int           // Max retained error entries per job (default: 200)
		EmitInterval   time.Duration // Min interval between pure-success progress writes (default: 350ms)
	}
	Enrichment struct {
		Workers    int           // Concurrent metadata lookups (default: 3)
		MaxWorkers int           // Hard cap on the worker pool (default: 8)
		JitterMin  time.Duration // Lower bound of per-request jitter (default: 50ms)
		JitterMax  time.Duration // Upper bound of per-request jitter (default: 250ms)
	}
	History struct {
		DefaultPages   int // Owner-level default pages per entry (0 = unset)
		DefaultMinutes int // Owner-level default minutes per entry (0 = unset)
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Cleanup struct {
		Enabled        bool
		Schedule       string        // Cron format: "*/10 * * * *" = every 10 minutes
		StaleThreshold time.Duration // Running job with no update for this long is failed over
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("uploads_dir", DefaultUploadsDir)

	// Progress telemetry defaults
	v.SetDefault("activity_log_cap", 25)
	v.SetDefault("error_log_cap", 200)
	v.SetDefault("progress_emit_interval", "350ms")

	// Metadata enrichment defaults. Small worker count to respect provider
	// rate limits.
	v.SetDefault("enrich_workers", 3)
	v.SetDefault("enrich_max_workers", 8)
	v.SetDefault("enrich_jitter_min", "50ms")
	v.SetDefault("enrich_jitter_max", "250ms")

	// Reading-history duration defaults (0 = unset, system fallback applies)
	v.SetDefault("history_default_pages", 0)
	v.SetDefault("history_default_minutes", 0)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "30m")
	v.SetDefault("task_release_after", "45m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	// Stale-job cleanup defaults
	v.SetDefault("cleanup_enabled", true)
	v.SetDefault("cleanup_schedule", "*/10 * * * *")
	v.SetDefault("cleanup_stale_threshold", "30m")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Uploads: Uploads{
			Dir: v.GetString("UPLOADS_DIR"),
		},
		Telemetry: Telemetry{
			ActivityLogCap: v.GetInt("ACTIVITY_LOG_CAP"),
			ErrorLogCap:    v.GetInt("ERROR_LOG_CAP"),
			EmitInterval:   v.GetDuration("PROGRESS_EMIT_INTERVAL"),
		},
		Enrichment: Enrichment{
			Workers:    v.GetInt("ENRICH_WORKERS"),
			MaxWorkers: v.GetInt("ENRICH_MAX_WORKERS"),
			JitterMin:  v.GetDuration("ENRICH_JITTER_MIN"),
			JitterMax:  v.GetDuration("ENRICH_JITTER_MAX"),
		},
		History: History{
			DefaultPages:   v.GetInt("HISTORY_DEFAULT_PAGES"),
			DefaultMinutes: v.GetInt("HISTORY_DEFAULT_MINUTES"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Cleanup: Cleanup{
			Enabled:        v.GetBool("CLEANUP_ENABLED"),
			Schedule:       v.GetString("CLEANUP_SCHEDULE"),
			StaleThreshold: v.GetDuration("CLEANUP_STALE_THRESHOLD"),
		},
	}
}
