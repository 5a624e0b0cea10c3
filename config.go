package synapse

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SYNAPSE_"

// EngineConfig is the engine's external configuration surface
// (spec.md §6 "CLI surface" plus the config-file/env expansion).
type EngineConfig struct {
	GraphPath     string        `koanf:"graph_path"`
	StartNodeID   string        `koanf:"start_node_id"`
	Trace         bool          `koanf:"trace"`
	Headless      bool          `koanf:"headless"`
	StepDelay     time.Duration `koanf:"step_delay"`
	StopFilePath  string        `koanf:"stop_file"`
	PauseFilePath string        `koanf:"pause_file"`
	SpeedFilePath string        `koanf:"speed_file"`

	NativePoolSize int    `koanf:"native_pool_size"`
	MetricsAddr    string `koanf:"metrics_addr"`
	RedisAddr      string `koanf:"redis_addr"`
}

// RedisBackend builds the optional RedisConfig for NewRedisBackend, or reports
// false if no redis_addr was configured.
func (c *EngineConfig) RedisBackend() (RedisConfig, bool) {
	if c.RedisAddr == "" {
		return RedisConfig{}, false
	}
	return RedisConfig{Addr: c.RedisAddr}, true
}

// ConfigLoader loads EngineConfig with precedence defaults -> file -> env,
// matching the teacher corpus's layered koanf.Koanf loader.
//
// Grounded on Hola-to-network_logistics_problem's pkg/config/loader.go
// (koanf.New(".") + confmap defaults, file.Provider+yaml.Parser, then
// env.Provider with prefix stripping); the LoaderOption functional-options
// shape is kept, narrowed to the one option this engine's config actually
// needs (an explicit file path) since there is no multi-path search list
// here.
type ConfigLoader struct {
	k          *koanf.Koanf
	configPath string
}

type LoaderOption func(*ConfigLoader)

func WithConfigPath(path string) LoaderOption {
	return func(l *ConfigLoader) { l.configPath = path }
}

func NewConfigLoader(opts ...LoaderOption) *ConfigLoader {
	l := &ConfigLoader{k: koanf.New(".")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *ConfigLoader) Load() (*EngineConfig, error) {
	defaults := map[string]any{
		"graph_path":       "",
		"start_node_id":    "",
		"trace":            false,
		"headless":         false,
		"step_delay":       0,
		"stop_file":        "",
		"pause_file":       "",
		"speed_file":       "",
		"native_pool_size": nativePoolSize,
		"metrics_addr":     "",
		"redis_addr":       "",
	}
	if err := l.k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("synapse: load config defaults: %w", err)
	}

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			if err := l.k.Load(file.Provider(l.configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("synapse: load config file %q: %w", l.configPath, err)
			}
		}
	}

	if err := l.k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("synapse: load config env: %w", err)
	}

	var cfg EngineConfig
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("synapse: unmarshal config: %w", err)
	}
	return &cfg, nil
}
