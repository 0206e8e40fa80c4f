// Package config loads service configuration from an optional YAML file
// with DOCSUM_* environment overrides on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Extract ExtractConfig `yaml:"extract"`
	LLM     LLMConfig     `yaml:"llm"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port     int `yaml:"port"`
	MaxConns int `yaml:"max_conns"`
}

type JobsConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

type ExtractConfig struct {
	MaxPages int  `yaml:"max_pages"`
	Tables   bool `yaml:"tables"`
}

type LLMConfig struct {
	DefaultBackend string `yaml:"default_backend"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	OpenAIModel    string `yaml:"openai_model"`
	OllamaBaseURL  string `yaml:"ollama_base_url"`
	OllamaModel    string `yaml:"ollama_model"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	UploadDir string `yaml:"upload_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port:     8080,
			MaxConns: 256,
		},
		Jobs: JobsConfig{
			MaxConcurrent: 4,
		},
		Extract: ExtractConfig{
			MaxPages: 3,
			Tables:   true,
		},
		LLM: LLMConfig{
			DefaultBackend: "ollama",
			OllamaBaseURL:  "http://localhost:11434",
			OllamaModel:    "llama3.2",
		},
		Storage: StorageConfig{
			DataDir:   dataDir,
			UploadDir: filepath.Join(dataDir, "uploads"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "docsum-data"
		}
	}
	return filepath.Join(dir, "docsum")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "docsum", "config.yaml")
}

// Load reads the config file at $XDG_CONFIG_HOME/docsum/config.yaml (if
// present) and applies DOCSUM_* environment overrides. A missing file is
// not an error; a malformed one is.
func Load() (Config, error) {
	return loadFrom(configFilePath())
}

func loadFrom(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Jobs.MaxConcurrent < 1 {
		return Config{}, fmt.Errorf("jobs.max_concurrent must be at least 1, got %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Extract.MaxPages < 1 {
		return Config{}, fmt.Errorf("extract.max_pages must be at least 1, got %d", cfg.Extract.MaxPages)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envString("DOCSUM_OPENAI_API_KEY", &cfg.LLM.OpenAIAPIKey)
	envString("DOCSUM_OPENAI_BASE_URL", &cfg.LLM.OpenAIBaseURL)
	envString("DOCSUM_OPENAI_MODEL", &cfg.LLM.OpenAIModel)
	envString("DOCSUM_OLLAMA_BASE_URL", &cfg.LLM.OllamaBaseURL)
	envString("DOCSUM_OLLAMA_MODEL", &cfg.LLM.OllamaModel)
	envString("DOCSUM_DEFAULT_BACKEND", &cfg.LLM.DefaultBackend)
	envString("DOCSUM_DATA_DIR", &cfg.Storage.DataDir)
	envString("DOCSUM_UPLOAD_DIR", &cfg.Storage.UploadDir)
	envString("DOCSUM_LOG_LEVEL", &cfg.Log.Level)
	envInt("DOCSUM_PORT", &cfg.Server.Port)
	envInt("DOCSUM_MAX_CONCURRENT", &cfg.Jobs.MaxConcurrent)
	envInt("DOCSUM_MAX_PAGES", &cfg.Extract.MaxPages)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		} else {
			fmt.Fprintf(os.Stderr, "[WARN] invalid integer for %s: %q. Keeping current value.\n", key, v)
		}
	}
}
