package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Capture sink modes.
const (
	CaptureModeFile  = "file"
	CaptureModeRedis = "redis"
)

// Config is the immutable gateway configuration resolved once at startup.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Payment  PaymentConfig  `yaml:"payment"`
	Capture  CaptureConfig  `yaml:"capture"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Host           string `yaml:"host" validate:"required"`
	Port           int    `yaml:"port" validate:"min=1,max=65535"`
	MetricsAddress string `yaml:"metrics_address" validate:"omitempty,hostname_port"`
}

// UpstreamConfig points at the inference provider reached through the payment authority.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
}

// PaymentConfig carries the payment authority credentials and transaction defaults.
type PaymentConfig struct {
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	APIToken         string        `yaml:"api_token" validate:"required"`
	Chain            string        `yaml:"chain" validate:"required"`
	Asset            string        `yaml:"asset" validate:"required"`
	Agent            string        `yaml:"agent"`
	AgentID          string        `yaml:"agent_id"`
	DefaultAmountUSD float64       `yaml:"default_amount_usd" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gte=0"`
}

// CaptureConfig toggles the debug capture sink. An empty mode disables capture.
type CaptureConfig struct {
	Mode      string `yaml:"mode" validate:"omitempty,oneof=file redis"`
	File      string `yaml:"file" validate:"required_if=Mode file"`
	RedisAddr string `yaml:"redis_addr" validate:"required_if=Mode redis"`
	RedisKey  string `yaml:"redis_key" validate:"required_if=Mode redis"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// Enabled reports whether any capture sink is configured.
func (c CaptureConfig) Enabled() bool {
	return c.Mode != ""
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load builds the configuration from defaults, an optional YAML file and the
// process environment, in that order of precedence.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := env("PORT", "GATEWAY_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse port %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := env("HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := env("GATEWAY_METRICS_ADDR"); ok {
		c.Server.MetricsAddress = v
	}
	if v, ok := env("BLOCKRUN_API_BASE"); ok {
		c.Upstream.BaseURL = v
	}
	if v, ok := env("CLAWCREDIT_API_BASE"); ok {
		c.Payment.BaseURL = v
	}
	if v, ok := env("CLAWCREDIT_API_TOKEN"); ok {
		c.Payment.APIToken = v
	}
	if v, ok := env("CLAWCREDIT_CHAIN"); ok {
		c.Payment.Chain = v
	}
	if v, ok := env("CLAWCREDIT_ASSET"); ok {
		c.Payment.Asset = v
	}
	if v, ok := env("CLAWCREDIT_AGENT"); ok {
		c.Payment.Agent = v
	}
	if v, ok := env("CLAWCREDIT_AGENT_ID"); ok {
		c.Payment.AgentID = v
	}
	if v, ok := env("CLAWCREDIT_DEFAULT_AMOUNT_USD"); ok {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse CLAWCREDIT_DEFAULT_AMOUNT_USD %q: %w", v, err)
		}
		c.Payment.DefaultAmountUSD = amount
	}
	if v, ok := env("CLAWCREDIT_TIMEOUT"); ok {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CLAWCREDIT_TIMEOUT %q: %w", v, err)
		}
		c.Payment.Timeout = timeout
	}
	if v, ok := env("GATEWAY_CAPTURE"); ok {
		switch strings.ToLower(v) {
		case "1", "true", CaptureModeFile:
			c.Capture.Mode = CaptureModeFile
		case CaptureModeRedis:
			c.Capture.Mode = CaptureModeRedis
		default:
			c.Capture.Mode = ""
		}
	}
	if v, ok := env("GATEWAY_CAPTURE_FILE"); ok {
		c.Capture.File = v
	}
	if v, ok := env("GATEWAY_CAPTURE_REDIS_ADDR"); ok {
		c.Capture.RedisAddr = v
		if c.Capture.Mode == CaptureModeFile {
			c.Capture.Mode = CaptureModeRedis
		}
	}
	if v, ok := env("GATEWAY_CAPTURE_REDIS_KEY"); ok {
		c.Capture.RedisKey = v
	}
	if v, ok := env("GATEWAY_DEBUG"); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse GATEWAY_DEBUG %q: %w", v, err)
		}
		c.Log.Debug = debug
	}
	return nil
}

// resolve fills chain-dependent defaults. Explicit values always win.
func (c *Config) resolve() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Payment.APIToken = strings.TrimSpace(c.Payment.APIToken)
	c.Payment.BaseURL = strings.TrimRight(strings.TrimSpace(c.Payment.BaseURL), "/")

	defaults := ResolveChainAsset(c.Payment.Chain, c.Payment.Asset)
	c.Payment.Chain = defaults.Chain
	c.Payment.Asset = defaults.Asset

	c.Upstream.BaseURL = strings.TrimRight(ResolveUpstreamBase(c.Payment.Chain, c.Upstream.BaseURL), "/")
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return formatValidationError(verrs[0])
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if math.IsNaN(c.Payment.DefaultAmountUSD) || math.IsInf(c.Payment.DefaultAmountUSD, 0) {
		return fmt.Errorf("payment.default_amount_usd must be finite, got %v", c.Payment.DefaultAmountUSD)
	}
	if c.Payment.Chain != strings.ToUpper(c.Payment.Chain) {
		return fmt.Errorf("payment.chain %q must be upper case", c.Payment.Chain)
	}
	return nil
}

func formatValidationError(fe validator.FieldError) error {
	// Namespace is "Config.payment.api_token"; drop the root type name.
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s must be provided", field)
	case "url":
		return fmt.Errorf("%s must be an absolute URL, got %q", field, fe.Value())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "hostname_port":
		return fmt.Errorf("%s must be a host:port address, got %q", field, fe.Value())
	case "min", "max":
		return fmt.Errorf("%s must be a valid TCP port, got %v", field, fe.Value())
	default:
		return fmt.Errorf("%s failed %q validation (value %v)", field, fe.Tag(), fe.Value())
	}
}
