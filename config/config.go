package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"escrowflow/logger"
)

// Config is the full service configuration, loadable from a YAML file with
// ${VAR:default} expansion and overridable through the environment.
type Config struct {
	Listen       string        `yaml:"listen"`
	DatabaseURL  string        `yaml:"database_url"`
	JWTSecret    string        `yaml:"jwt_secret"`
	MinimumStake int64         `yaml:"minimum_stake"`
	Log          logger.Config `yaml:"log"`
}

var envRegex = regexp.MustCompile(`\$\{([^:}]+)(?::([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:default} occurrences.
func ExpandEnv(s string) string {
	return envRegex.ReplaceAllStringFunc(s, func(m string) string {
		groups := envRegex.FindStringSubmatch(m)
		if len(groups) < 2 {
			return m
		}
		if val, ok := os.LookupEnv(groups[1]); ok {
			return val
		}
		if len(groups) > 2 {
			return groups[2]
		}
		return ""
	})
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Listen:       getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		MinimumStake: getEnvInt64("MINIMUM_JUROR_STAKE", 1000),
		Log: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Load reads a YAML config file, expands environment references, and fills
// unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.MinimumStake <= 0 {
		return Config{}, fmt.Errorf("config: minimum_stake must be positive")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}
