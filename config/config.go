// Package config provides configuration loading for the Yggdrasil engine:
// a typed application config plus a read-only store over JSON config files
// with a dev-variant overlay.
package config

import (
	"fmt"
	"os"
	"time"
)

// AppConfigName is the logical name of the main engine configuration.
const AppConfigName = "yggdrasil"

// Config is the complete engine configuration.
type Config struct {
	NATS        NATSConfig         `json:"nats"`
	Instruments []InstrumentConfig `json:"instruments"`
	HPC         HPCConfig          `json:"hpc"`
	ChangeFeed  ChangeFeedConfig   `json:"change_feed"`
	Logging     LoggingConfig      `json:"logging"`
	Metrics     MetricsConfig      `json:"metrics"`

	// ModuleRegistry is the path to the realm registry file.
	ModuleRegistry string `json:"module_registry"`
}

// NATSConfig configures the connection to the document stores.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `json:"url"`
	// ProjectsBucket is the KV bucket holding upstream project documents.
	ProjectsBucket string `json:"projects_bucket"`
	// DocumentsBucket is the KV bucket holding Yggdrasil documents.
	DocumentsBucket string `json:"documents_bucket"`
}

// InstrumentConfig configures one filesystem watcher.
type InstrumentConfig struct {
	// Name identifies the instrument in emitted events.
	Name string `json:"name"`
	// Directory is the root under which run folders appear.
	Directory string `json:"directory"`
	// MarkerFiles lists the files (glob patterns allowed) that must all
	// appear in a run folder before it is considered ready.
	MarkerFiles []string `json:"marker_files"`
}

// HPCConfig configures the batch-scheduler interface.
type HPCConfig struct {
	// SubmitCommand is the scheduler submission command, e.g. "sbatch".
	SubmitCommand string `json:"submit_command"`
	// StatusCommand is the scheduler accounting command; the job id is
	// appended as the last argument.
	StatusCommand string `json:"status_command"`
	// CommandTimeout bounds each scheduler command invocation.
	CommandTimeout string `json:"command_timeout"`
	// PollInterval is the delay between job status polls.
	PollInterval string `json:"poll_interval"`
	// ScriptsDir is where per-sample job scripts are expected.
	ScriptsDir string `json:"scripts_dir"`
}

// GetCommandTimeout returns the per-command timeout as a duration.
func (c *HPCConfig) GetCommandTimeout() time.Duration {
	return parseDuration(c.CommandTimeout, 8*time.Second)
}

// GetPollInterval returns the status poll interval as a duration.
func (c *HPCConfig) GetPollInterval() time.Duration {
	return parseDuration(c.PollInterval, 30*time.Second)
}

// ChangeFeedConfig configures the projects-DB change feed watcher.
type ChangeFeedConfig struct {
	// PollInterval is the sleep between full drains of the feed.
	PollInterval string `json:"poll_interval"`
	// CursorFile is where the change cursor is persisted.
	CursorFile string `json:"cursor_file"`
}

// GetPollInterval returns the drain interval as a duration.
func (c *ChangeFeedConfig) GetPollInterval() time.Duration {
	return parseDuration(c.PollInterval, 10*time.Second)
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	// Dir is the directory for per-run log files.
	Dir string `json:"dir"`
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level"`
}

// MetricsConfig configures the optional metrics listener.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the listener.
	Addr string `json:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:             "nats://localhost:4222",
			ProjectsBucket:  "YGG_PROJECTS",
			DocumentsBucket: "YGG_DOCUMENTS",
		},
		HPC: HPCConfig{
			SubmitCommand:  "sbatch",
			StatusCommand:  "sacct -n -X -o State -j",
			CommandTimeout: "8s",
			PollInterval:   "30s",
			ScriptsDir:     "sample_scripts",
		},
		ChangeFeed: ChangeFeedConfig{
			PollInterval: "10s",
			CursorFile:   "yggdrasil_cursor",
		},
		Logging: LoggingConfig{
			Dir:   "logs",
			Level: "info",
		},
		ModuleRegistry: "module_registry.json",
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.NATS.ProjectsBucket == "" {
		return fmt.Errorf("nats.projects_bucket is required")
	}
	if c.NATS.DocumentsBucket == "" {
		return fmt.Errorf("nats.documents_bucket is required")
	}
	if c.HPC.SubmitCommand == "" || c.HPC.StatusCommand == "" {
		return fmt.Errorf("hpc.submit_command and hpc.status_command are required")
	}
	for _, inst := range c.Instruments {
		if inst.Name == "" || inst.Directory == "" {
			return fmt.Errorf("instrument entries require name and directory")
		}
		if len(inst.MarkerFiles) == 0 {
			return fmt.Errorf("instrument %s: marker_files must not be empty", inst.Name)
		}
	}
	return nil
}

// LoadApp loads the main engine configuration from the store, applies
// defaults for unset fields and environment overrides, and validates it.
func LoadApp(store *Store) (*Config, error) {
	cfg := DefaultConfig()
	if err := store.LoadInto(AppConfigName, true, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over file
// values for deployment-sensitive settings.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("YGG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("YGG_SLURM_SUBMIT"); v != "" {
		cfg.HPC.SubmitCommand = v
	}
	if v := os.Getenv("YGG_SLURM_STATUS"); v != "" {
		cfg.HPC.StatusCommand = v
	}
	if v := os.Getenv("YGG_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
