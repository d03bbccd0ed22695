// ============================================================================
// Scheduler Configuration - YAML File Plus Environment Overlay
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Loads scheduler configuration from a YAML file, then overlays
// environment variables via caarlos0/env, so an operator can override any
// setting without editing the file (grounded on target-mmk-ui-api's
// AppConfig, which composes per-domain structs and leans on env's
// envDefault/envPrefix tags rather than hand-rolled defaulting code).
//
// Load layers three sources: envDefault tags seed every field, YAML-supplied
// values override those defaults, and an explicit environment variable
// overrides both.
// ============================================================================

package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ethanzhu/shardsched/internal/schederr"
)

// SchedulerConfig holds the scheduler core's tunables.
type SchedulerConfig struct {
	WorkQueueBuffer             int `yaml:"work_queue_buffer" env:"SCHED_WORK_QUEUE_BUFFER" envDefault:"256"`
	ReconcileGracePeriodSeconds int `yaml:"reconcile_grace_period_seconds" env:"SCHED_RECONCILE_GRACE_SECONDS" envDefault:"300"`
}

// PersistenceConfig holds the durable snapshot store's settings.
type PersistenceConfig struct {
	Path string `yaml:"path" env:"SCHED_PERSISTENCE_PATH" envDefault:"data/snapshot.json"`
}

// MetricsConfig holds the Prometheus HTTP endpoint's settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"SCHED_METRICS_ENABLED" envDefault:"true"`
	Port    int  `yaml:"port" env:"SCHED_METRICS_PORT" envDefault:"9090"`
}

// ClusterConfig holds cluster-master connection settings.
type ClusterConfig struct {
	MasterAddr string `yaml:"master_addr" env:"SCHED_MASTER_ADDR"`
}

// Config is the complete scheduler configuration.
type Config struct {
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Cluster     ClusterConfig     `yaml:"cluster"`
}

// Load reads YAML configuration from path (a missing file is not an
// error — every field falls back to its env/default), then overlays
// environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	// Seed every field from its envDefault tag (and any variable already set).
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	// Re-apply only the variables actually set, so they win over the YAML
	// file. The default-value tag name below matches no tag, so envDefault
	// is not consulted again and cannot overwrite YAML-supplied values.
	if err := env.ParseWithOptions(&cfg, env.Options{DefaultValueTagName: "envOverlayNoDefault"}); err != nil {
		return nil, fmt.Errorf("parse config environment overlay: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects, at startup, a negative reconcile grace period, a
// non-positive work queue buffer, and (when metrics are enabled) a metrics
// port outside 1-65535, each as a schederr.TaskDescriptionException.
// scheduler.New would otherwise replace a non-positive grace period or
// buffer with its own defaults without reporting anything.
func validate(cfg *Config) error {
	if cfg.Scheduler.ReconcileGracePeriodSeconds < 0 {
		return schederr.NewTaskDescriptionException(
			"scheduler.reconcile_grace_period_seconds must not be negative, got %d",
			cfg.Scheduler.ReconcileGracePeriodSeconds)
	}
	if cfg.Scheduler.WorkQueueBuffer <= 0 {
		return schederr.NewTaskDescriptionException(
			"scheduler.work_queue_buffer must be positive, got %d",
			cfg.Scheduler.WorkQueueBuffer)
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return schederr.NewTaskDescriptionException(
			"metrics.port must be between 1 and 65535 when metrics are enabled, got %d",
			cfg.Metrics.Port)
	}
	return nil
}
