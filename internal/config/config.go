package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Controller  ControllerConfig  `yaml:"controller"`
	PrintServer PrintServerConfig `yaml:"print_server"`
	Printer     PrinterConfig     `yaml:"printer"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Database    DatabaseConfig    `yaml:"database"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ControllerConfig struct {
	Port              int           `yaml:"port" env:"CONTROLLER_PORT"`
	PrintServerURL    string        `yaml:"print_server_url" env:"PRINT_SERVER_URL"`
	DispatchTimeout   time.Duration `yaml:"dispatch_timeout" env:"PRINT_DISPATCH_TIMEOUT"`
	StatusTimeout     time.Duration `yaml:"status_timeout" env:"PRINT_STATUS_TIMEOUT"`
	DispatchWorkers   int           `yaml:"dispatch_workers" env:"PRINT_DISPATCH_WORKERS"`
	DispatchQueueSize int           `yaml:"dispatch_queue_size"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after" env:"PRINT_STALE_AFTER"`
}

type PrintServerConfig struct {
	Port        int           `yaml:"port" env:"PRINT_SERVER_PORT"`
	BackendURL  string        `yaml:"backend_url" env:"BACKEND_URL"`
	JobCooldown time.Duration `yaml:"job_cooldown" env:"PRINT_JOB_COOLDOWN"`
}

type PrinterConfig struct {
	Backend     string        `yaml:"backend" env:"PRINTER_BACKEND"`
	Name        string        `yaml:"name" env:"PRINTER_NAME"`
	PaperSize   string        `yaml:"paper_size" env:"PRINTER_PAPER_SIZE"`
	Quality     string        `yaml:"quality" env:"PRINTER_QUALITY"`
	PageDelay   time.Duration `yaml:"page_delay" env:"PRINTER_PAGE_DELAY"`
	SettleTime  time.Duration `yaml:"settle_time" env:"PRINTER_SETTLE_TIME"`
	TempDir     string        `yaml:"temp_dir" env:"PRINTER_TEMP_DIR"`
	IPPHost     string        `yaml:"ipp_host" env:"PRINTER_IPP_HOST"`
	IPPPort     int           `yaml:"ipp_port" env:"PRINTER_IPP_PORT"`
	IPPUser     string        `yaml:"ipp_user" env:"PRINTER_IPP_USER"`
	IPPPassword string        `yaml:"ipp_password" env:"PRINTER_IPP_PASSWORD"`
	IPPTLS      bool          `yaml:"ipp_tls" env:"PRINTER_IPP_TLS"`
}

type WebhookConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"WEBHOOK_MAX_ATTEMPTS"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"WEBHOOK_RETRY_DELAY"`
	Timeout     time.Duration `yaml:"timeout" env:"WEBHOOK_TIMEOUT"`
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"DATABASE_PATH"`
}

type AuthConfig struct {
	ServiceSecret string `yaml:"service_secret" env:"SERVICE_SECRET"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

const (
	BackendAuto     = "auto"
	BackendCUPS     = "cups"
	BackendIPP      = "ipp"
	BackendSimulate = "simulate"
)

func defaults() *Config {
	return &Config{
		Controller: ControllerConfig{
			Port:              3000,
			PrintServerURL:    "http://localhost:4000",
			DispatchTimeout:   30 * time.Second,
			StatusTimeout:     5 * time.Second,
			DispatchWorkers:   4,
			DispatchQueueSize: 100,
			ReconcileInterval: time.Minute,
			StaleAfter:        15 * time.Minute,
		},
		PrintServer: PrintServerConfig{
			Port:        4000,
			BackendURL:  "http://localhost:3000",
			JobCooldown: time.Second,
		},
		Printer: PrinterConfig{
			Backend:    BackendAuto,
			Name:       "Canon_SELPHY_CP1500",
			PaperSize:  "Postcard",
			Quality:    "high",
			PageDelay:  2 * time.Second,
			SettleTime: 5 * time.Second,
			IPPPort:    631,
		},
		Webhook: WebhookConfig{
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
			Timeout:     10 * time.Second,
			Workers:     2,
			QueueSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at configPath,
// the dotenv file at envFile and finally the process environment. Missing
// files are not an error.
func Load(configPath, envFile string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validatePort("controller", c.Controller.Port); err != nil {
		return err
	}
	if err := validatePort("print server", c.PrintServer.Port); err != nil {
		return err
	}

	if err := validateURL("print server url", c.Controller.PrintServerURL); err != nil {
		return err
	}
	if err := validateURL("backend url", c.PrintServer.BackendURL); err != nil {
		return err
	}

	if c.Controller.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch timeout must be positive")
	}
	if c.Controller.StatusTimeout <= 0 {
		return fmt.Errorf("status timeout must be positive")
	}
	if c.Controller.DispatchWorkers < 1 {
		return fmt.Errorf("dispatch workers must be at least 1")
	}
	if c.Controller.DispatchQueueSize < 1 {
		return fmt.Errorf("dispatch queue size must be at least 1")
	}
	if c.Controller.StaleAfter < 0 {
		return fmt.Errorf("stale after must be non-negative")
	}
	if c.Controller.StaleAfter > 0 && c.Controller.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile interval must be positive when stale after is set")
	}

	if c.PrintServer.JobCooldown < 0 {
		return fmt.Errorf("job cooldown must be non-negative")
	}

	validBackends := map[string]bool{
		BackendAuto:     true,
		BackendCUPS:     true,
		BackendIPP:      true,
		BackendSimulate: true,
	}
	if !validBackends[c.Printer.Backend] {
		return fmt.Errorf("invalid printer backend: %s (valid: auto, cups, ipp, simulate)", c.Printer.Backend)
	}
	if c.Printer.Name == "" {
		return fmt.Errorf("printer name is required")
	}
	if _, ok := QualityLevels[c.Printer.Quality]; !ok {
		return fmt.Errorf("invalid print quality: %s (valid: draft, normal, high)", c.Printer.Quality)
	}
	if c.Printer.PageDelay < 0 || c.Printer.SettleTime < 0 {
		return fmt.Errorf("printer delays must be non-negative")
	}
	if c.Printer.Backend == BackendIPP {
		if c.Printer.IPPHost == "" {
			return fmt.Errorf("ipp host is required for the ipp backend")
		}
		if err := validatePort("ipp", c.Printer.IPPPort); err != nil {
			return err
		}
	}

	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook max attempts must be at least 1")
	}
	if c.Webhook.RetryDelay < 0 || c.Webhook.Timeout < 0 {
		return fmt.Errorf("webhook durations must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

// QualityLevels maps the configured quality to the IPP print-quality enum
// that both lp and IPP accept.
var QualityLevels = map[string]int{
	"draft":  3,
	"normal": 4,
	"high":   5,
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute url, got %q", name, raw)
	}
	return nil
}
