package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/pdf-converter/internal/core/usecase"
)

type Config struct {
	APIPort  string
	LogLevel string

	UploadDir         string
	OutputDir         string
	WorkDir           string
	MaxFileSize       int64
	MaxUploadFiles    int
	MaxImageFiles     int
	AllowedExtensions []string
	FileTTL           time.Duration
	SweepInterval     time.Duration
	MaxOutputBytes    int

	ToolPaths map[string]string
	Timeouts  usecase.Timeouts

	ToolBreakerEnabled      bool
	ToolBreakerMinRequests  int
	ToolBreakerFailureRatio float64
	ToolBreakerOpenTimeout  time.Duration

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration
	APIMaxConnections   int

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	WorkerMetricsPort string
}

const defaultAllowedExtensions = ".pdf,.docx,.pptx,.xlsx,.txt,.jpg,.jpeg,.png,.webp"

// Load reads the environment. When CONFIG_FILE names a YAML document of
// KEY: value pairs, its values sit beneath the environment.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}

	cfg := Config{
		APIPort:  src.mustEnv("API_PORT", "5000"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		UploadDir:         src.mustEnv("UPLOAD_DIR", "./temp/uploads"),
		OutputDir:         src.mustEnv("OUTPUT_DIR", "./temp/outputs"),
		WorkDir:           src.mustEnv("WORK_DIR", ""),
		MaxFileSize:       src.mustEnvInt64("MAX_FILE_SIZE", 10485760),
		MaxUploadFiles:    src.mustEnvInt("MAX_UPLOAD_FILES", 20),
		MaxImageFiles:     src.mustEnvInt("MAX_IMAGE_FILES", 50),
		AllowedExtensions: parseExtensions(src.mustEnv("ALLOWED_EXTENSIONS", defaultAllowedExtensions)),
		FileTTL:           time.Duration(src.mustEnvInt("FILE_TTL_SECONDS", 3600)) * time.Second,
		SweepInterval:     src.mustEnvDuration("SWEEP_INTERVAL", 30*time.Minute),
		MaxOutputBytes:    src.mustEnvInt("MAX_OUTPUT_BYTES", 10*1024*1024),

		ToolPaths: map[string]string{
			"qpdf":        src.mustEnv("QPDF_PATH", "qpdf"),
			"ghostscript": src.mustEnv("GHOSTSCRIPT_PATH", "gs"),
			"libreoffice": src.mustEnv("LIBREOFFICE_PATH", "soffice"),
			"poppler":     src.mustEnv("POPPLER_PATH", "pdftoppm"),
			"imagemagick": src.mustEnv("IMAGEMAGICK_PATH", "magick"),
			"tesseract":   src.mustEnv("TESSERACT_PATH", "tesseract"),
			"openssl":     src.mustEnv("OPENSSL_PATH", "openssl"),
		},
		Timeouts: usecase.Timeouts{
			Merge:        src.mustEnvDuration("TIMEOUT_MERGE", 60*time.Second),
			PageCount:    src.mustEnvDuration("TIMEOUT_PAGE_COUNT", 10*time.Second),
			Split:        src.mustEnvDuration("TIMEOUT_SPLIT", 30*time.Second),
			Compress:     src.mustEnvDuration("TIMEOUT_COMPRESS", 120*time.Second),
			Rasterize:    src.mustEnvDuration("TIMEOUT_RASTERIZE", 120*time.Second),
			ImageCompose: src.mustEnvDuration("TIMEOUT_IMAGE_COMPOSE", 120*time.Second),
			Edit:         src.mustEnvDuration("TIMEOUT_EDIT", 60*time.Second),
			Office:       src.mustEnvDuration("TIMEOUT_OFFICE", 180*time.Second),
			Text:         src.mustEnvDuration("TIMEOUT_TEXT", 120*time.Second),
			OpenSSL:      src.mustEnvDuration("TIMEOUT_OPENSSL", 30*time.Second),
			Sign:         src.mustEnvDuration("TIMEOUT_SIGN", 60*time.Second),
			Watermark:    src.mustEnvDuration("TIMEOUT_WATERMARK", 120*time.Second),
		},

		ToolBreakerEnabled:      src.mustEnvBool("TOOL_BREAKER_ENABLED", true),
		ToolBreakerMinRequests:  src.mustEnvInt("TOOL_BREAKER_MIN_REQUESTS", 5),
		ToolBreakerFailureRatio: src.mustEnvFloat("TOOL_BREAKER_FAILURE_RATIO", 0.6),
		ToolBreakerOpenTimeout:  src.mustEnvDuration("TOOL_BREAKER_OPEN_TIMEOUT", 30*time.Second),

		APIRateLimitRPS:     src.mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:   src.mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:      src.mustEnvInt("API_MAX_INFLIGHT", 16),
		APIBackpressureWait: src.mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),
		APIMaxConnections:   src.mustEnvInt("API_MAX_CONNECTIONS", 256),

		PostgresDSN: src.mustEnv("POSTGRES_DSN", ""),

		NATSURL:     src.mustEnv("NATS_URL", ""),
		NATSSubject: src.mustEnv("NATS_SUBJECT", "conversions.completed"),

		WorkerMetricsPort: src.mustEnv("WORKER_METRICS_PORT", "9090"),
	}
	return cfg, nil
}

// Validate rejects settings under which the sweep could delete files of a
// conversion that is still running.
func (c Config) Validate() error {
	var errs []error
	if c.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be positive"))
	}
	if c.MaxUploadFiles < 2 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_FILES must allow at least 2 files"))
	}
	if c.MaxImageFiles < 1 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_FILES must be positive"))
	}
	if len(c.AllowedExtensions) == 0 {
		errs = append(errs, fmt.Errorf("ALLOWED_EXTENSIONS is empty"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive"))
	}
	if longest := c.Timeouts.Max(); c.FileTTL <= longest {
		errs = append(errs, fmt.Errorf("FILE_TTL_SECONDS (%s) must exceed the longest operation timeout (%s)", c.FileTTL, longest))
	}
	return errors.Join(errs...)
}

// AllowsExtension reports whether ext (with or without the dot) is accepted for upload.
func (c Config) AllowsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return false
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, allowed := range c.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

func parseExtensions(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return out, nil
}

type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvInt64(key string, fallback int64) int64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func (s source) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
