// Package config loads server settings from an optional YAML file with
// environment-variable overrides. Everything has a sensible default so
// the binary starts with no file at all.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Addr string `yaml:"addr"`

	Budget  BudgetConfig  `yaml:"budget"`
	Models  ModelsConfig  `yaml:"models"`
	Breaker BreakerConfig `yaml:"breaker"`
	Costs   CostsConfig   `yaml:"costs"`
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	GCS     GCSConfig     `yaml:"gcs"`
	OTel    OTelConfig    `yaml:"otel"`
}

type OTelConfig struct {
	Enabled bool `yaml:"enabled"`
}

type BudgetConfig struct {
	Total           float64 `yaml:"total"`
	PerOperationCap float64 `yaml:"per_operation_cap"`
}

type ModelsConfig struct {
	Gemini string `yaml:"gemini"`
	Imagen string `yaml:"imagen"`
	Veo    string `yaml:"veo"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

type CostsConfig struct {
	Vision  float64 `yaml:"vision"`
	Image   float64 `yaml:"image"`
	Video   float64 `yaml:"video"`
	Storage float64 `yaml:"storage"`
}

type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
	Prefix          string `yaml:"prefix"`
}

func Default() Config {
	return Config{
		Addr: "127.0.0.1:8080",
		Budget: BudgetConfig{
			Total:           300,
			PerOperationCap: 50,
		},
		Models: ModelsConfig{
			Gemini: "gemini-2.5-flash",
			Imagen: "imagen-4.0-generate-001",
			Veo:    "veo-3.0-generate-001",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      60 * time.Second,
		},
		Costs: CostsConfig{
			Vision:  0.05,
			Image:   0.12,
			Video:   2.50,
			Storage: 0.01,
		},
		Store: StoreConfig{
			SQLitePath: "adcraft.db",
		},
	}
}

// Load reads the YAML file at path when it exists, then applies
// environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Addr = ParseStringEnv("ADCRAFT_ADDR", c.Addr)
	c.Budget.Total = ParseFloatEnv("ADCRAFT_BUDGET_TOTAL", c.Budget.Total)
	c.Budget.PerOperationCap = ParseFloatEnv("ADCRAFT_BUDGET_PER_OP_CAP", c.Budget.PerOperationCap)
	c.Models.Gemini = ParseStringEnv("ADCRAFT_MODEL_GEMINI", c.Models.Gemini)
	c.Models.Imagen = ParseStringEnv("ADCRAFT_MODEL_IMAGEN", c.Models.Imagen)
	c.Models.Veo = ParseStringEnv("ADCRAFT_MODEL_VEO", c.Models.Veo)
	c.Breaker.FailureThreshold = ParseIntEnv("ADCRAFT_BREAKER_THRESHOLD", c.Breaker.FailureThreshold)
	c.Breaker.OpenTimeout = ParseDurationEnv("ADCRAFT_BREAKER_OPEN_TIMEOUT", c.Breaker.OpenTimeout)
	c.Store.SQLitePath = ParseStringEnv("ADCRAFT_SQLITE_PATH", c.Store.SQLitePath)
	c.Redis.Addr = ParseStringEnv("ADCRAFT_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = ParseStringEnv("ADCRAFT_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = ParseIntEnv("ADCRAFT_REDIS_DB", c.Redis.DB)
	c.GCS.Bucket = ParseStringEnv("ADCRAFT_GCS_BUCKET", c.GCS.Bucket)
	c.GCS.CredentialsFile = ParseStringEnv("ADCRAFT_GCS_CREDENTIALS", c.GCS.CredentialsFile)
	c.GCS.Prefix = ParseStringEnv("ADCRAFT_GCS_PREFIX", c.GCS.Prefix)
	c.OTel.Enabled = ParseBoolEnv("ADCRAFT_OTEL_ENABLED", c.OTel.Enabled)
}
