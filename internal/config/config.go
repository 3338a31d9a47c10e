// Package config loads renderbridge configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = ""

// Await modes for RenderServer.AwaitMode.
const (
	AwaitModeStream = "stream"
	AwaitModePoll   = "poll"
)

// Config is the full process configuration. Each cmd loads it once and hands
// the relevant sections to the components it builds.
type Config struct {
	Environment
	RenderServer
	HTTPServer
	Postgres
	Redis
	Worker
	Storage
}

// Environment holds process-level settings.
type Environment struct {
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogSource   bool   `envconfig:"LOG_SOURCE" default:"false"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"renderbridge"`
}

// RenderServer holds the render-server address, credential and retry tunables.
type RenderServer struct {
	BaseURL              string        `envconfig:"RENDER_SERVER_BASE_URL" default:"http://127.0.0.1:8188" validate:"required,http_url"`
	APIKey               string        `envconfig:"RENDER_SERVER_API_KEY"`
	ReachabilityAttempts int           `envconfig:"RENDER_SERVER_AVAILABLE_MAX_RETRIES" default:"50"`
	ReachabilityInterval time.Duration `envconfig:"RENDER_SERVER_AVAILABLE_INTERVAL" default:"50ms"`
	ReconnectAttempts    int           `envconfig:"STREAM_RECONNECT_ATTEMPTS" default:"5"`
	ReconnectDelay       time.Duration `envconfig:"STREAM_RECONNECT_DELAY" default:"3s"`
	AwaitMode            string        `envconfig:"AWAIT_MODE" default:"stream" validate:"oneof=stream poll"`
	PollInterval         time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	DefaultTimeout       time.Duration `envconfig:"JOB_DEFAULT_TIMEOUT" default:"300s"`
	RequestTimeout       time.Duration `envconfig:"RENDER_SERVER_REQUEST_TIMEOUT" default:"60s"`
	ImageFetchTimeout    time.Duration `envconfig:"IMAGE_FETCH_TIMEOUT" default:"30s"`
	ImageMaxBytes        int64         `envconfig:"IMAGE_MAX_BYTES" default:"67108864"`
}

// HTTPServer holds the trigger API settings.
type HTTPServer struct {
	Port               string        `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout        time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout       time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15m"`
	IdleTimeout        time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	RateLimitRPS       float64       `envconfig:"HTTP_RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst     int           `envconfig:"HTTP_RATE_LIMIT_BURST" default:"10"`
}

// Postgres holds the job-record database settings.
type Postgres struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Redis holds the async queue settings.
type Redis struct {
	Addr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	QueueName string `envconfig:"JOB_QUEUE_NAME" default:"renderbridge:jobs"`
}

// Worker holds queue consumer settings.
type Worker struct {
	Concurrency int           `envconfig:"WORKER_CONCURRENCY" default:"1"`
	PopTimeout  time.Duration `envconfig:"WORKER_POP_TIMEOUT" default:"5s"`
}

// Storage selects and configures the input asset storage provider.
type Storage struct {
	Provider           string `envconfig:"STORAGE_PROVIDER" default:"localfs" validate:"oneof=localfs gdrive s3"`
	LocalRoot          string `envconfig:"STORAGE_LOCAL_ROOT" default:"/data"`
	GDriveClientID     string `envconfig:"GDRIVE_CLIENT_ID"`
	GDriveClientSecret string `envconfig:"GDRIVE_CLIENT_SECRET"`
	GDriveRefreshToken string `envconfig:"GDRIVE_REFRESH_TOKEN"`
	GDriveFolderID     string `envconfig:"GDRIVE_FOLDER_ID"`
	S3Bucket           string `envconfig:"S3_BUCKET"`
	S3Region           string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint         string `envconfig:"S3_ENDPOINT"`
	S3Prefix           string `envconfig:"S3_PREFIX"`
	CleanupInputs      bool   `envconfig:"STORAGE_CLEANUP_INPUTS" default:"false"`
}

// dotEnvFiles are read in order. godotenv never overrides a variable that is
// already set, so earlier files win.
var dotEnvFiles = []string{".env.local", ".env"}

// Load reads optional .env files and then the process environment.
func Load() (*Config, error) {
	if err := loadDotEnv(dotEnvFiles...); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv loads each file that exists. A missing file is skipped; a
// malformed one is an error.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate normalizes and checks values envconfig cannot express.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.AwaitMode = strings.ToLower(strings.TrimSpace(c.AwaitMode))
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.ReachabilityAttempts < 1 {
		c.ReachabilityAttempts = 1
	}
	if c.ReconnectAttempts < 1 {
		c.ReconnectAttempts = 1
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return nil
}
