// Package config loads skillrt settings from ~/.skillrt/config.yaml,
// ./config.yaml, SKILLRT_* environment variables and bound CLI flags.
package config

import (
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jingkaihe/skillrt/pkg/mcp"
	"github.com/jingkaihe/skillrt/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable override
const EnvPrefix = "SKILLRT"

// Config is the complete runtime configuration
type Config struct {
	LogLevel  string           `mapstructure:"log_level"`
	LogFormat string           `mapstructure:"log_format"`
	Skills    SkillsConfig     `mapstructure:"skills"`
	Executor  ExecutorConfig   `mapstructure:"executor"`
	History   HistoryConfig    `mapstructure:"history"`
	MCP       MCPConfig        `mapstructure:"mcp"`
	Tracing   telemetry.Config `mapstructure:"tracing"`
	Server    ServerConfig     `mapstructure:"server"`
}

// SkillsConfig selects the skill sources discovery reads
type SkillsConfig struct {
	ProjectDir  string   `mapstructure:"project_dir"`
	UserDir     string   `mapstructure:"user_dir"`
	Builtin     bool     `mapstructure:"builtin"`
	Adapters    []string `mapstructure:"adapters"`
	AdapterDirs []string `mapstructure:"adapter_dirs"`
	Exclude     []string `mapstructure:"exclude"`
}

// ExecutorConfig tunes retries and the fallback timeout
type ExecutorConfig struct {
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// HistoryConfig controls the execution history database
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MCPConfig lists the MCP servers by id
type MCPConfig struct {
	Servers map[string]mcp.ServerConfig `mapstructure:"servers"`
}

// ServerConfig is the HTTP API listen address
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Init configures v the way the CLI expects: defaults, the SKILLRT env
// prefix and the config file search path. The config file is optional.
func Init(v *viper.Viper) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.skillrt")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// SetDefaults registers the default of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("skills.project_dir", filepath.Join(".", ".skillrt", "skills"))
	v.SetDefault("skills.user_dir", filepath.Join("~", ".skillrt", "skills"))
	v.SetDefault("skills.builtin", true)
	v.SetDefault("skills.adapters", []string{"npm", "make"})
	v.SetDefault("skills.adapter_dirs", []string{"."})
	v.SetDefault("skills.exclude", []string{})

	v.SetDefault("executor.retry_base_delay", time.Second)
	v.SetDefault("executor.retry_max_delay", 30*time.Second)
	v.SetDefault("executor.default_timeout", 300*time.Second)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")

	t := TracingDefaults()
	v.SetDefault("tracing.enabled", t.Enabled)
	v.SetDefault("tracing.service_name", t.ServiceName)
	v.SetDefault("tracing.sampler", t.Sampler)
	v.SetDefault("tracing.ratio", t.Ratio)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8040)
}

// TracingDefaults returns the tracing settings used when none are configured
func TracingDefaults() telemetry.Config {
	return telemetry.Config{ServiceName: "skillrt", Sampler: "ratio", Ratio: 1}
}

// Load decodes v into a Config and validates it. Leading ~ in directory
// settings is expanded to home.
func Load(v *viper.Viper, home string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	cfg.Skills.ProjectDir = expandHome(cfg.Skills.ProjectDir, home)
	cfg.Skills.UserDir = expandHome(cfg.Skills.UserDir, home)
	cfg.History.Path = expandHome(cfg.History.Path, home)
	for i, d := range cfg.Skills.AdapterDirs {
		cfg.Skills.AdapterDirs[i] = expandHome(d, home)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the runtime cannot honour
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return errors.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	switch c.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		return errors.Errorf("tracing.sampler must be always, never or ratio, got %q", c.Tracing.Sampler)
	}
	if c.Tracing.Ratio < 0 || c.Tracing.Ratio > 1 {
		return errors.Errorf("tracing.ratio must be between 0 and 1, got %v", c.Tracing.Ratio)
	}
	if c.Executor.RetryBaseDelay < 0 || c.Executor.RetryMaxDelay < 0 {
		return errors.New("executor retry delays must not be negative")
	}
	if c.Executor.DefaultTimeout <= 0 {
		return errors.New("executor.default_timeout must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}

func expandHome(p, home string) string {
	if home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}
