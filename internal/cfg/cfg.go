package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"credit-risk/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type ConfigFile struct {
	Model struct {
		Path          string `yaml:"path"`
		PythonPath    string `yaml:"pythonPath"`
		PythonTimeout string `yaml:"pythonTimeout"`
	} `yaml:"model"`

	Server struct {
		ListenAddr   string `yaml:"listenAddr"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"readTimeout"`
		WriteTimeout string `yaml:"writeTimeout"`
	} `yaml:"server"`

	Storage struct {
		DataPath     string `yaml:"dataPath"`
		JournalLimit int    `yaml:"journalLimit"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads .env when present, then the YAML file named by CONFIG_FILE if set,
// and finally applies environment overrides on top.
func Load() (Settings, error) {
	loadEnvFile()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

// loadEnvFile populates unset environment variables from .env in the working
// directory or the nearest directory holding go.mod.
func loadEnvFile() {
	paths := []string{".env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to load env file")
			continue
		}
		log.Debug().Str("path", path).Msg("loaded env file")
		return
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Defaults()
	if config.Model.Path != "" {
		settings.ModelPath = config.Model.Path
	}
	settings.PythonPath = config.Model.PythonPath
	if config.Server.ListenAddr != "" {
		settings.ListenAddr = config.Server.ListenAddr
	}
	if config.Server.Port != 0 {
		settings.HTTPPort = config.Server.Port
	}
	settings.DataPath = config.Storage.DataPath
	if config.Storage.JournalLimit != 0 {
		settings.JournalLimit = config.Storage.JournalLimit
	}
	if config.Logging.Level != "" {
		settings.LogLevel = config.Logging.Level
	}
	if config.Logging.Format != "" {
		settings.LogFormat = config.Logging.Format
	}

	for _, d := range []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"model.pythonTimeout", config.Model.PythonTimeout, &settings.PythonTimeout},
		{"server.readTimeout", config.Server.ReadTimeout, &settings.ReadTimeout},
		{"server.writeTimeout", config.Server.WriteTimeout, &settings.WriteTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
		*d.field = parsed
	}

	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Defaults()
	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// applyEnv overrides settings with every environment variable that is set.
func applyEnv(s *Settings) {
	s.ModelPath = getEnvOrDefault(common.EnvModelPath, s.ModelPath)
	s.PythonPath = getEnvOrDefault(common.EnvPythonPath, s.PythonPath)
	s.PythonTimeout = getDurationOrDefault(common.EnvPythonTimeout, s.PythonTimeout)
	s.ListenAddr = getEnvOrDefault(common.EnvListenAddr, s.ListenAddr)
	s.HTTPPort = getIntOrDefault(common.EnvHTTPPort, s.HTTPPort)
	s.ReadTimeout = getDurationOrDefault(common.EnvReadTimeout, s.ReadTimeout)
	s.WriteTimeout = getDurationOrDefault(common.EnvWriteTimeout, s.WriteTimeout)
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.JournalLimit = getIntOrDefault(common.EnvJournalLimit, s.JournalLimit)
	s.LogLevel = strings.ToLower(getEnvOrDefault(common.EnvLogLevel, s.LogLevel))
	s.LogFormat = strings.ToLower(getEnvOrDefault(common.EnvLogFormat, s.LogFormat))
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring invalid duration")
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring invalid integer")
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.ModelPath) == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.HTTPPort < common.MinHTTPPort || settings.HTTPPort > common.MaxHTTPPort {
		return fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinHTTPPort, common.MaxHTTPPort, settings.HTTPPort)
	}

	// Validate time durations
	if settings.PythonTimeout < time.Second || settings.PythonTimeout > 5*time.Minute {
		return fmt.Errorf("python timeout must be between 1s and 5m, got %v", settings.PythonTimeout)
	}
	if settings.ReadTimeout < time.Second || settings.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("read timeout must be between 1s and 5m, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("write timeout must be between 1s and 5m, got %v", settings.WriteTimeout)
	}

	if settings.JournalLimit <= 0 || settings.JournalLimit > common.MaxJournalLimit {
		return fmt.Errorf("journal limit must be between 1 and %d, got %d", common.MaxJournalLimit, settings.JournalLimit)
	}

	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil || settings.LogLevel == "" {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}
	switch settings.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
