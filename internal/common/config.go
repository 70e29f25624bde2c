package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Storage  StorageConfig  `yaml:"storage"`
	OCR      OCRConfig      `yaml:"ocr"`
	Worker   WorkerConfig   `yaml:"worker"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// RegistryConfig selects and sizes the job record store
type RegistryConfig struct {
	Driver           string        `yaml:"driver"` // memory | sqlite | postgres
	DSN              string        `yaml:"dsn"`
	SQLitePath       string        `yaml:"sqlite_path"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// StorageConfig selects the blob store for input and output artifacts
type StorageConfig struct {
	Driver     string        `yaml:"driver"` // local | s3
	Dir        string        `yaml:"dir"`
	Bucket     string        `yaml:"bucket"`
	Region     string        `yaml:"region"`
	Prefix     string        `yaml:"prefix"`
	Endpoint   string        `yaml:"endpoint"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// OCRConfig holds normalization and recognition configuration
type OCRConfig struct {
	Engine           string        `yaml:"engine"` // tesseract | easyocr | vision | gosseract
	Languages        []string      `yaml:"languages"`
	GPU              bool          `yaml:"gpu"`
	DPI              int           `yaml:"dpi"`
	MaxPages         int           `yaml:"max_pages"`
	MaxBytes         int64         `yaml:"max_bytes"`
	MaxPixels        int64         `yaml:"max_pixels"`
	Pdftoppm         string        `yaml:"pdftoppm"`
	Tesseract        string        `yaml:"tesseract"`
	TessdataDir      string        `yaml:"tessdata_dir"`
	PSM              int           `yaml:"psm"`
	OEM              int           `yaml:"oem"`
	EasyOCRURL       string        `yaml:"easyocr_url"`
	VisionCredsFile  string        `yaml:"vision_credentials_file"`
	RenderTimeout    time.Duration `yaml:"render_timeout"`
	RecognizeTimeout time.Duration `yaml:"recognize_timeout"`
}

// WorkerConfig holds pipeline worker and lease configuration
type WorkerConfig struct {
	Workers           int           `yaml:"workers"`
	QueueSize         int           `yaml:"queue_size"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	PageConcurrency   int           `yaml:"page_concurrency"`
	MinConfidence     float64       `yaml:"min_confidence"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       ":8000",
			GRPCAddr:       ":8081",
			MaxUploadBytes: 5 << 20,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
		},
		Registry: RegistryConfig{
			Driver:          "sqlite",
			SQLitePath:      "./data/jobs.db",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     "local",
			Dir:        "./data/blobs",
			PresignTTL: 15 * time.Minute,
		},
		OCR: OCRConfig{
			Engine:           "tesseract",
			Languages:        []string{"en"},
			DPI:              300,
			MaxPages:         50,
			MaxBytes:         5 << 20,
			MaxPixels:        100_000_000,
			Pdftoppm:         "pdftoppm",
			Tesseract:        "tesseract",
			PSM:              3,
			OEM:              1,
			EasyOCRURL:       "http://127.0.0.1:8500",
			RenderTimeout:    2 * time.Minute,
			RecognizeTimeout: 90 * time.Second,
		},
		Worker: WorkerConfig{
			Workers:           4,
			QueueSize:         256,
			JobTimeout:        10 * time.Minute,
			LeaseTTL:          2 * time.Minute,
			HeartbeatInterval: 30 * time.Second,
			SweepInterval:     30 * time.Second,
			PageConcurrency:   1,
		},
		LogLevel: "info",
	}
}

// LoadConfig builds configuration from defaults, an optional YAML file, then
// environment variables. path may be empty; CONFIG_FILE is consulted then.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "parse config file "+path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MaxUploadBytes = getEnvAsInt64("MAX_UPLOAD_BYTES", c.Server.MaxUploadBytes)

	c.Registry.Driver = getEnv("REGISTRY_DRIVER", c.Registry.Driver)
	c.Registry.DSN = getEnv("DB_URL", c.Registry.DSN)
	c.Registry.SQLitePath = getEnv("SQLITE_PATH", c.Registry.SQLitePath)
	c.Registry.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Registry.MaxConns)
	c.Registry.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Registry.MinConns)
	c.Registry.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Registry.MaxConnLifetime)
	c.Registry.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Registry.MaxConnIdleTime)
	c.Registry.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Registry.DialTimeout)
	c.Registry.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Registry.StatementTimeout)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Dir = getEnv("STORAGE_DIR", c.Storage.Dir)
	c.Storage.Bucket = getEnv("S3_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getEnv("AWS_REGION", c.Storage.Region)
	c.Storage.Prefix = getEnv("S3_PREFIX", c.Storage.Prefix)
	c.Storage.Endpoint = getEnv("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.PresignTTL = getEnvAsDuration("S3_PRESIGN_TTL", c.Storage.PresignTTL)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.Languages = getEnvAsList("OCR_LANGUAGES", c.OCR.Languages)
	c.OCR.GPU = getEnvAsBool("USE_GPU", c.OCR.GPU)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.MaxPages = getEnvAsInt("OCR_MAX_PAGES", c.OCR.MaxPages)
	c.OCR.MaxBytes = getEnvAsInt64("OCR_MAX_BYTES", c.OCR.MaxBytes)
	c.OCR.MaxPixels = getEnvAsInt64("OCR_MAX_PIXELS", c.OCR.MaxPixels)
	c.OCR.Pdftoppm = getEnv("PDFTOPPM", c.OCR.Pdftoppm)
	c.OCR.Tesseract = getEnv("TESSERACT", c.OCR.Tesseract)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.EasyOCRURL = getEnv("EASYOCR_URL", c.OCR.EasyOCRURL)
	c.OCR.VisionCredsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.OCR.VisionCredsFile)
	c.OCR.RenderTimeout = getEnvAsDuration("OCR_RENDER_TIMEOUT", c.OCR.RenderTimeout)
	c.OCR.RecognizeTimeout = getEnvAsDuration("OCR_RECOGNIZE_TIMEOUT", c.OCR.RecognizeTimeout)

	c.Worker.Workers = getEnvAsInt("WORKERS", c.Worker.Workers)
	c.Worker.QueueSize = getEnvAsInt("QUEUE_SIZE", c.Worker.QueueSize)
	c.Worker.JobTimeout = getEnvAsDuration("JOB_TIMEOUT", c.Worker.JobTimeout)
	c.Worker.LeaseTTL = getEnvAsDuration("LEASE_TTL", c.Worker.LeaseTTL)
	c.Worker.HeartbeatInterval = getEnvAsDuration("HEARTBEAT_INTERVAL", c.Worker.HeartbeatInterval)
	c.Worker.SweepInterval = getEnvAsDuration("SWEEP_INTERVAL", c.Worker.SweepInterval)
	c.Worker.PageConcurrency = getEnvAsInt("PAGE_CONCURRENCY", c.Worker.PageConcurrency)
	c.Worker.MinConfidence = getEnvAsFloat64("MIN_CONFIDENCE", c.Worker.MinConfidence)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// comma separated, blanks dropped
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("server.http_addr", c.Server.HTTPAddr, Required)
	v.Field("ocr.dpi", c.OCR.DPI, Between(36, 1200))
	v.Field("ocr.languages", c.OCR.Languages, NonEmptyList)
	v.Field("ocr.max_pages", c.OCR.MaxPages, Positive)
	v.Field("ocr.max_bytes", c.OCR.MaxBytes, Positive)
	v.Field("worker.workers", c.Worker.Workers, Positive)
	v.Field("worker.page_concurrency", c.Worker.PageConcurrency, Positive)
	v.Field("worker.min_confidence", c.Worker.MinConfidence, UnitInterval)
	v.Field("registry.driver", c.Registry.Driver, OneOf("memory", "sqlite", "postgres"))
	v.Field("storage.driver", c.Storage.Driver, OneOf("local", "s3"))
	v.Field("ocr.engine", c.OCR.Engine, OneOf("tesseract", "easyocr", "vision", "gosseract"))

	switch c.Registry.Driver {
	case "postgres":
		v.Field("registry.dsn", c.Registry.DSN, Required)
	case "sqlite":
		v.Field("registry.sqlite_path", c.Registry.SQLitePath, Required)
	}
	switch c.Storage.Driver {
	case "s3":
		v.Field("storage.bucket", c.Storage.Bucket, Required)
	case "local":
		v.Field("storage.dir", c.Storage.Dir, Required)
	}
	if c.Worker.HeartbeatInterval <= 0 || c.Worker.HeartbeatInterval >= c.Worker.LeaseTTL {
		v.Field("worker.heartbeat_interval", c.Worker.HeartbeatInterval, func(f string, val interface{}) *ValidationError {
			return &ValidationError{Field: f, Value: val, Message: fmt.Sprintf("must be positive and shorter than lease_ttl (%s)", c.Worker.LeaseTTL)}
		})
	}

	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
