package scaffold

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchedulerMode controls how the scheduler behaves in multi-instance deployments.
type SchedulerMode string

const (
	// SchedulerModeStandalone runs jobs unconditionally on this instance.
	// Combining standalone mode with cluster mode is a configuration error.
	SchedulerModeStandalone SchedulerMode = "standalone"

	// SchedulerModeAttached runs jobs only when clustering is inactive;
	// with cluster mode enabled the scheduler is simply disabled.
	SchedulerModeAttached SchedulerMode = "attached"
)

// Config is the validated application configuration. The framework treats it
// as already-validated input; Validate covers the structural rules the JSON
// schema can't express for non-JSON sources.
type Config struct {
	// Listen is the HTTP server listen address.
	Listen string `json:"listen" yaml:"listen" toml:"listen"`

	// ContextRoot is prefixed to every controller-declared route.
	ContextRoot string `json:"contextRoot" yaml:"contextRoot" toml:"contextRoot"`

	// ControllersPath is retained for config compatibility with deployments
	// that scanned a controller directory; controllers are now registered
	// explicitly and this value is only echoed in startup logs.
	ControllersPath string `json:"controllersPath" yaml:"controllersPath" toml:"controllersPath"`

	// ShutdownTimeout is the overall teardown budget in seconds.
	ShutdownTimeout int `json:"shutdownTimeout" yaml:"shutdownTimeout" toml:"shutdownTimeout"`

	Auth      AuthConfig         `json:"auth" yaml:"auth" toml:"auth"`
	Scheduler SchedulerSettings  `json:"scheduler" yaml:"scheduler" toml:"scheduler"`
	Cluster   ClusterConfig      `json:"cluster" yaml:"cluster" toml:"cluster"`
}

// AuthConfig groups the per-mode security settings.
type AuthConfig struct {
	JWT   JWTConfig   `json:"jwt" yaml:"jwt" toml:"jwt"`
	Basic BasicConfig `json:"basic" yaml:"basic" toml:"basic"`
}

// JWTConfig configures the jwt security mode. Algorithm selects the HMAC
// variant (HS256, HS384, HS512); unspecified or unrecognized values fall back
// to HS512.
type JWTConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Secret    string `json:"secret" yaml:"secret" toml:"secret"`
	Algorithm string `json:"algorithm" yaml:"algorithm" toml:"algorithm"`
}

// BasicConfig configures the basic security mode.
type BasicConfig struct {
	Enabled bool      `json:"enabled" yaml:"enabled" toml:"enabled"`
	Users   UserTable `json:"users" yaml:"users" toml:"users"`
}

// UserTable maps usernames to passwords. Config documents may express it
// either as a flat name→password object or as a list of {username, password}
// pairs; both decode into the same map.
type UserTable map[string]string

type userPair struct {
	Username string `json:"username" yaml:"username" toml:"username"`
	Password string `json:"password" yaml:"password" toml:"password"`
}

// UnmarshalJSON accepts both the flat-map and pair-list forms.
func (t *UserTable) UnmarshalJSON(data []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err == nil {
		*t = flat
		return nil
	}

	var pairs []userPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("users must be a name/password map or a list of {username,password} pairs: %w", err)
	}
	*t = pairsToTable(pairs)
	return nil
}

// UnmarshalYAML accepts both the flat-map and pair-list forms.
func (t *UserTable) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		var flat map[string]string
		if err := value.Decode(&flat); err != nil {
			return fmt.Errorf("decoding users map: %w", err)
		}
		*t = flat
		return nil
	}

	var pairs []userPair
	if err := value.Decode(&pairs); err != nil {
		return fmt.Errorf("users must be a name/password map or a list of {username,password} pairs: %w", err)
	}
	*t = pairsToTable(pairs)
	return nil
}

func pairsToTable(pairs []userPair) UserTable {
	table := make(UserTable, len(pairs))
	for _, p := range pairs {
		table[p.Username] = p.Password
	}
	return table
}

// SchedulerSettings configures the scheduler service and its jobs.
type SchedulerSettings struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	Mode     SchedulerMode `json:"mode" yaml:"mode" toml:"mode"`
	Timezone string        `json:"timezone" yaml:"timezone" toml:"timezone"`
	Jobs     []JobConfig   `json:"jobs" yaml:"jobs" toml:"jobs"`
}

// JobConfig declares one scheduled job. Enabled defaults to true when omitted.
type JobConfig struct {
	Name       string         `json:"name" yaml:"name" toml:"name"`
	Cron       string         `json:"cron" yaml:"cron" toml:"cron"`
	Module     string         `json:"module" yaml:"module" toml:"module"`
	Timezone   string         `json:"timezone" yaml:"timezone" toml:"timezone"`
	LeaderOnly bool           `json:"leaderOnly" yaml:"leaderOnly" toml:"leaderOnly"`
	Options    map[string]any `json:"options" yaml:"options" toml:"options"`
	Enabled    *bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// IsEnabled reports whether the job should be instantiated.
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

// ClusterConfig flags whether this process runs as part of a cluster.
type ClusterConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Listen:          ":8080",
		ContextRoot:     "/",
		ShutdownTimeout: 30,
		Auth: AuthConfig{
			JWT: JWTConfig{Algorithm: "HS512"},
		},
		Scheduler: SchedulerSettings{
			Mode: SchedulerModeAttached,
		},
	}
}

// Validate checks structural rules shared by every config source.
func (c *Config) Validate() error {
	if c.ShutdownTimeout < 1 {
		return fmt.Errorf("%w: shutdownTimeout must be at least 1 second", ErrConfigInvalid)
	}

	if c.Auth.JWT.Enabled && c.Auth.JWT.Secret == "" {
		return ErrJWTSecretMissing
	}

	switch c.Scheduler.Mode {
	case SchedulerModeStandalone, SchedulerModeAttached, "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSchedulerMode, c.Scheduler.Mode)
	}

	for _, job := range c.Scheduler.Jobs {
		if job.Name == "" || strings.TrimSpace(job.Cron) == "" {
			return fmt.Errorf("%w: scheduler job needs both name and cron expression", ErrConfigInvalid)
		}
		if job.Module == "" {
			return fmt.Errorf("%w: scheduler job %q has no module reference", ErrConfigInvalid, job.Name)
		}
	}
	return nil
}
