package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Llamalith services. The same
// struct feeds the API server, the workers, and the supervisor; each
// binary reads the sections it needs.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Runtime    RuntimeConfig
	Generation GenerationConfig
	Worker     WorkerConfig
	Supervisor SupervisorConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	// TokenHash is the bcrypt hash of the single API token. Empty
	// disables authentication (development only).
	TokenHash string
}

// RuntimeConfig describes the local inference server and the model key
// table. Keys are what clients put in a job's model_key; values are the
// model names the runtime understands.
type RuntimeConfig struct {
	BaseURL     string
	Models      map[string]string
	LoadTimeout time.Duration
	GenTimeout  time.Duration
}

// GenerationConfig carries the sampling knobs supplied uniformly to every
// generation call. ContextLength and SafetyMargin bound the output budget:
// a long prompt shrinks the requested output so prompt plus reply plus the
// margin still fit in the model's context window.
type GenerationConfig struct {
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	Mirostat      int
	MirostatTau   float64
	MirostatEta   float64
	MaxTokens     int
	ContextLength int
	SafetyMargin  int
}

type WorkerConfig struct {
	PollInterval time.Duration
	MaxModels    int // max resident model handles per worker, 0 = unbounded
}

type SupervisorConfig struct {
	WorkerCount     int
	WorkerBin       string
	RestartDelay    time.Duration
	ReclaimInterval time.Duration // 0 disables the stale-job sweep
	ReclaimAge      time.Duration
}

const defaultModels = "mistral=mistral:7b-instruct,mythomax=mythomax:13b"

// Load reads configuration from the environment (and .env, when present)
// and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LLAMALITH_PORT", 8080),
			Env:  envString("LLAMALITH_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Auth: AuthConfig{
			TokenHash: os.Getenv("LLAMALITH_API_TOKEN_HASH"),
		},
		Runtime: RuntimeConfig{
			BaseURL:     envString("LLAMALITH_RUNTIME_URL", "http://localhost:11434"),
			LoadTimeout: envDuration("LLAMALITH_MODEL_LOAD_TIMEOUT", 2*time.Minute),
			GenTimeout:  envDuration("LLAMALITH_GENERATION_TIMEOUT", 5*time.Minute),
		},
		Generation: GenerationConfig{
			Temperature:   envFloat("LLAMALITH_TEMPERATURE", 0.8),
			TopP:          envFloat("LLAMALITH_TOP_P", 0.95),
			TopK:          envInt("LLAMALITH_TOP_K", 40),
			RepeatPenalty: envFloat("LLAMALITH_REPEAT_PENALTY", 1.1),
			Mirostat:      envInt("LLAMALITH_MIROSTAT", 0),
			MirostatTau:   envFloat("LLAMALITH_MIROSTAT_TAU", 5.0),
			MirostatEta:   envFloat("LLAMALITH_MIROSTAT_ETA", 0.1),
			MaxTokens:     envInt("LLAMALITH_MAX_TOKENS", 512),
			ContextLength: envInt("LLAMALITH_CONTEXT_LENGTH", 4096),
			SafetyMargin:  envInt("LLAMALITH_SAFETY_MARGIN", 128),
		},
		Worker: WorkerConfig{
			PollInterval: envDuration("LLAMALITH_POLL_INTERVAL", time.Second),
			MaxModels:    envInt("LLAMALITH_MAX_RESIDENT_MODELS", 0),
		},
		Supervisor: SupervisorConfig{
			WorkerCount:     envInt("LLAMALITH_WORKERS", 2),
			WorkerBin:       envString("LLAMALITH_WORKER_BIN", "llamalith-worker"),
			RestartDelay:    envDuration("LLAMALITH_RESTART_DELAY", 2*time.Second),
			ReclaimInterval: envDuration("LLAMALITH_RECLAIM_INTERVAL", 0),
			ReclaimAge:      envDuration("LLAMALITH_RECLAIM_AGE", 15*time.Minute),
		},
	}

	var err error
	cfg.Runtime.Models, err = parseModels(envString("LLAMALITH_MODELS", defaultModels))
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Runtime.BaseURL, "http://") && !strings.HasPrefix(c.Runtime.BaseURL, "https://") {
		return fmt.Errorf("LLAMALITH_RUNTIME_URL must start with http:// or https://, got %q", c.Runtime.BaseURL)
	}
	if len(c.Runtime.Models) == 0 {
		return fmt.Errorf("LLAMALITH_MODELS must define at least one model key")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("LLAMALITH_POLL_INTERVAL must be positive")
	}
	if c.Supervisor.WorkerCount < 1 {
		return fmt.Errorf("LLAMALITH_WORKERS must be at least 1")
	}
	return nil
}

// parseModels reads "key=model,key=model" pairs into the model key table.
func parseModels(raw string) (map[string]string, error) {
	models := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, name, ok := strings.Cut(pair, "=")
		key, name = strings.TrimSpace(key), strings.TrimSpace(name)
		if !ok || key == "" || name == "" {
			return nil, fmt.Errorf("LLAMALITH_MODELS entry %q must be key=model", pair)
		}
		models[key] = name
	}
	return models, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
