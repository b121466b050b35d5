package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config file, data directory and env prefix.
	AppName = "streamctl"

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "STREAMCTL"
)

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// EnvSpec maps one environment variable onto a config key.
type EnvSpec struct {
	Name string
	Path string
}

// SetConfigFile pins the config file instead of searching for one. An empty
// path restores the search.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// DefaultDataDir is where the registry lives unless configured.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.enabled", true)

	dataDir := DefaultDataDir()
	v.SetDefault("workspace.local_base", filepath.Join(dataDir, "local"))
	v.SetDefault("workspace.remote_base", "s3://streamctl")

	v.SetDefault("registry.backend", RegistryFile)
	v.SetDefault("registry.path", filepath.Join(dataDir, "registry"))
	v.SetDefault("registry.url", "")
	v.SetDefault("registry.auth_token", "")

	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.profile", "")
	v.SetDefault("storage.s3.force_path_style", false)

	v.SetDefault("tracking.enabled", false)
	v.SetDefault("tracking.interval", 30*time.Second)
	v.SetDefault("tracking.concurrency", 4)
	v.SetDefault("tracking.rate_limit", 0.0)
	v.SetDefault("tracking.fetch_timeout", 10*time.Second)
	v.SetDefault("tracking.lease_ttl", time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lease_key", "streamctl:tracking:lease")
}

// getEnvSpecs lists the short environment names. Every key is also
// reachable as STREAMCTL_<SECTION>_<KEY>.
func getEnvSpecs() []EnvSpec {
	p := EnvPrefix + "_"
	return []EnvSpec{
		{p + "HOST", "server.host"},
		{p + "PORT", "server.port"},
		{p + "READ_TIMEOUT", "server.read_timeout"},
		{p + "WRITE_TIMEOUT", "server.write_timeout"},
		{p + "SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{p + "LOG_LEVEL", "logging.level"},
		{p + "METRICS_ENABLED", "metrics.enabled"},
		{p + "REGISTRY_BACKEND", "registry.backend"},
		{p + "REGISTRY_PATH", "registry.path"},
		{p + "REGISTRY_URL", "registry.url"},
		{p + "REGISTRY_AUTH_TOKEN", "registry.auth_token"},
		{p + "S3_BUCKET", "storage.s3.bucket"},
		{p + "S3_ENDPOINT", "storage.s3.endpoint"},
		{p + "REDIS_ADDR", "redis.addr"},
	}
}

// getUserConfigPaths lists directories searched for streamctl.yaml.
func getUserConfigPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+AppName))
	}
	return append(paths, ".")
}

// Load builds the configuration and makes it the current one. Later
// overrides win over earlier ones; all overrides win over the environment.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	configMu.RLock()
	file := configFile
	configMu.RUnlock()
	if file == "" {
		file = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		for _, p := range getUserConfigPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name, envKey(spec.Path)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Registry.Backend = strings.ToLower(strings.TrimSpace(cfg.Registry.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func envKey(path string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := map[string]any{}
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
