package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type MQTTConfig struct {
	Broker      string `yaml:"broker"`    // Optional: tcp://host:1883, events are only logged when empty
	ClientID    string `yaml:"client_id"` // Optional: default gatekeeper-auth
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"` // Optional: default gatekeeper
}

type Config struct {
	HTTPAddr string   `yaml:"http_addr"` // HTTP listen address (default: :8080)
	Issuer   string   `yaml:"issuer"`    // Issuer claim for tokens (default: gatekeeper-auth)
	Audience []string `yaml:"audience"`  // Optional: audience claim, checked on verify when set

	DBDriver string `yaml:"db_driver"` // sqlite or postgres (default: sqlite)
	DBDSN    string `yaml:"db_dsn"`    // SQLite path or postgres URL (default: auth.db)

	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`  // default: 15m
	PendingTokenTTL time.Duration `yaml:"pending_token_ttl"` // default: 5m
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"` // default: 168h
	RefreshRotation bool          `yaml:"refresh_rotation"`  // Rotate refresh tokens on use (default: false)

	MFAPolicy      string `yaml:"mfa_policy"`       // optional or mandatory (default: optional)
	MFAMaxAttempts int    `yaml:"mfa_max_attempts"` // Wrong codes allowed per pending token (default: 5)
	TOTPIssuer     string `yaml:"totp_issuer"`      // Label shown by authenticator apps (default: Gatekeeper)

	KeyMode        string        `yaml:"key_mode"`         // ephemeral or persistent (default: ephemeral)
	KeyAlgorithm   string        `yaml:"key_algorithm"`    // EdDSA or ES256 (default: EdDSA)
	NumKeys        int           `yaml:"num_keys"`         // Active signing keys, 1 to 10 (default: 1)
	KeyGracePeriod time.Duration `yaml:"key_grace_period"` // Verification window for retired keys (default: 30 days)
	MasterKeyPath  string        `yaml:"master_key_path"`  // Optional: master key sealing TOTP secrets and signing keys
	PepperPath     string        `yaml:"pepper_path"`      // Pepper for password hashing (default: ./pepper)

	BootstrapToken       string        `yaml:"bootstrap_token"`       // Optional: enables POST /v1/bootstrap
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"` // default: 1h
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"` // default: 10s

	MQTT MQTTConfig `yaml:"mqtt"`

	Env       string `yaml:"env"`        // dev, staging, prod (default: dev)
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error (default: info)
	LogFormat string `yaml:"log_format"` // json or text (default: json)
}

func DefaultConfig() Config {
	return Config{
		HTTPAddr:             ":8080",
		Issuer:               "gatekeeper-auth",
		DBDriver:             "sqlite",
		DBDSN:                "auth.db",
		AccessTokenTTL:       15 * time.Minute,
		PendingTokenTTL:      5 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		MFAPolicy:            "optional",
		MFAMaxAttempts:       5,
		TOTPIssuer:           "Gatekeeper",
		KeyMode:              "ephemeral",
		KeyAlgorithm:         "EdDSA",
		NumKeys:              1,
		KeyGracePeriod:       30 * 24 * time.Hour,
		PepperPath:           "pepper",
		HousekeepingInterval: time.Hour,
		ShutdownGracePeriod:  10 * time.Second,
		MQTT: MQTTConfig{
			ClientID:    "gatekeeper-auth",
			TopicPrefix: "gatekeeper",
		},
		Env:       "dev",
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// LoadConfig layers the YAML file named by AUTH_CONFIG_FILE and then the
// environment over the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnvOrDefault("AUTH_HTTP_ADDR", c.HTTPAddr)
	c.Issuer = getEnvOrDefault("AUTH_ISSUER", c.Issuer)
	c.Audience = getEnvListOrDefault("AUTH_AUDIENCE", c.Audience)

	c.DBDriver = getEnvOrDefault("AUTH_DB_DRIVER", c.DBDriver)
	c.DBDSN = getEnvOrDefault("AUTH_DB_DSN", c.DBDSN)

	c.AccessTokenTTL = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", c.AccessTokenTTL)
	c.PendingTokenTTL = getEnvDurationOrDefault("AUTH_PENDING_TOKEN_TTL", c.PendingTokenTTL)
	c.RefreshTokenTTL = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", c.RefreshTokenTTL)
	c.RefreshRotation = getEnvBoolOrDefault("AUTH_REFRESH_ROTATION", c.RefreshRotation)

	c.MFAPolicy = getEnvOrDefault("AUTH_MFA_POLICY", c.MFAPolicy)
	c.MFAMaxAttempts = getEnvIntOrDefault("AUTH_MFA_MAX_ATTEMPTS", c.MFAMaxAttempts)
	c.TOTPIssuer = getEnvOrDefault("AUTH_TOTP_ISSUER", c.TOTPIssuer)

	c.KeyMode = getEnvOrDefault("AUTH_KEY_MODE", c.KeyMode)
	c.KeyAlgorithm = getEnvOrDefault("AUTH_KEY_ALGORITHM", c.KeyAlgorithm)
	c.NumKeys = getEnvIntOrDefault("AUTH_NUM_KEYS", c.NumKeys)
	c.KeyGracePeriod = getEnvDurationOrDefault("AUTH_KEY_GRACE_PERIOD", c.KeyGracePeriod)
	c.MasterKeyPath = getEnvOrDefault("AUTH_MASTER_KEY_PATH", c.MasterKeyPath)
	c.PepperPath = getEnvOrDefault("AUTH_PEPPER_PATH", c.PepperPath)

	c.BootstrapToken = getEnvOrDefault("AUTH_BOOTSTRAP_TOKEN", c.BootstrapToken)
	c.HousekeepingInterval = getEnvDurationOrDefault("AUTH_HOUSEKEEPING_INTERVAL", c.HousekeepingInterval)
	c.ShutdownGracePeriod = getEnvDurationOrDefault("AUTH_SHUTDOWN_GRACE_PERIOD", c.ShutdownGracePeriod)

	c.MQTT.Broker = getEnvOrDefault("AUTH_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnvOrDefault("AUTH_MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnvOrDefault("AUTH_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnvOrDefault("AUTH_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.TopicPrefix = getEnvOrDefault("AUTH_MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)

	c.Env = getEnvOrDefault("APP_ENV", c.Env)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.HTTPAddr != "", "http_addr is required")
	check(strings.TrimSpace(c.Issuer) != "", "issuer is required")

	check(c.DBDriver == "sqlite" || c.DBDriver == "postgres",
		"db_driver must be sqlite or postgres, got %q", c.DBDriver)
	check(c.DBDSN != "", "db_dsn is required")

	check(c.AccessTokenTTL > 0, "access_token_ttl must be positive")
	check(c.PendingTokenTTL > 0, "pending_token_ttl must be positive")
	check(c.RefreshTokenTTL > c.AccessTokenTTL, "refresh_token_ttl must exceed access_token_ttl")

	check(c.MFAPolicy == "optional" || c.MFAPolicy == "mandatory",
		"mfa_policy must be optional or mandatory, got %q", c.MFAPolicy)
	check(c.MFAMaxAttempts > 0, "mfa_max_attempts must be positive")

	check(c.KeyMode == "ephemeral" || c.KeyMode == "persistent",
		"key_mode must be ephemeral or persistent, got %q", c.KeyMode)
	check(c.KeyAlgorithm == "EdDSA" || c.KeyAlgorithm == "ES256",
		"key_algorithm must be EdDSA or ES256, got %q", c.KeyAlgorithm)
	check(c.NumKeys >= 1 && c.NumKeys <= 10, "num_keys must be between 1 and 10")
	check(c.KeyMode != "persistent" || c.MasterKeyPath != "" || os.Getenv("AUTH_MASTER_KEY") != "",
		"persistent key_mode needs master_key_path or AUTH_MASTER_KEY")

	check(c.HousekeepingInterval > 0, "housekeeping_interval must be positive")
	check(c.PepperPath != "", "pepper_path is required")

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
