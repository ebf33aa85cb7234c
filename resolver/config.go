package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultConfigFile = "config.json"

// Environment variables read by ApplyEnv.
const (
	EnvThreshold     = "OBD_RESOLVER_THRESHOLD"
	EnvCorpusPath    = "OBD_RESOLVER_CORPUS"
	EnvQueueSize     = "OBD_RESOLVER_QUEUE_SIZE"
	EnvOrtDLL        = "OBD_RESOLVER_ORT_DLL"
	EnvModelPath     = "OBD_RESOLVER_MODEL_PATH"
	EnvTokenizerPath = "OBD_RESOLVER_TOKENIZER_PATH"
	EnvTokenizer     = "OBD_RESOLVER_TOKENIZER"
	EnvMaxSeqLen     = "OBD_RESOLVER_MAX_SEQ_LEN"
	EnvCacheDir      = "OBD_RESOLVER_CACHE_DIR"
	EnvModelID       = "OBD_RESOLVER_MODEL_ID"
)

// LoadConfig loads configuration from the given path or the default config.json.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if cfg.Embedder.CacheDir != "" {
		if err := os.MkdirAll(cfg.Embedder.CacheDir, 0o755); err != nil {
			return cfg, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// LoadEnv reads .env files into the process environment. Missing files are
// skipped; variables already set are not overridden.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from OBD_RESOLVER_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok, err := envFloat(EnvThreshold); err != nil {
		return err
	} else if ok {
		c.SetThreshold(float32(v))
	}
	if v, ok, err := envInt(EnvQueueSize); err != nil {
		return err
	} else if ok {
		c.QueueSize = v
	}
	if v, ok, err := envInt(EnvMaxSeqLen); err != nil {
		return err
	} else if ok {
		c.Embedder.MaxSeqLen = v
	}
	setString(&c.CorpusPath, EnvCorpusPath)
	setString(&c.Embedder.OrtDLL, EnvOrtDLL)
	setString(&c.Embedder.ModelPath, EnvModelPath)
	setString(&c.Embedder.TokenizerPath, EnvTokenizerPath)
	setString(&c.Embedder.Tokenizer, EnvTokenizer)
	setString(&c.Embedder.CacheDir, EnvCacheDir)
	setString(&c.Embedder.ModelID, EnvModelID)
	return nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if t := c.MinScore(); !(t >= -1 && t <= 1) {
		return fmt.Errorf("threshold %v is outside [-1, 1]", t)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size %d is negative", c.QueueSize)
	}
	if c.Embedder.MaxSeqLen < 0 {
		return fmt.Errorf("max sequence length %d is negative", c.Embedder.MaxSeqLen)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, true, nil
}

func envFloat(key string) (float64, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("parse %s: %q is not a finite number", key, raw)
	}
	return v, true, nil
}
