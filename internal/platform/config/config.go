// Package config loads process configuration from the environment, an optional .env
// file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendBolt     = "bolt"
	BackendMongo    = "mongo"
)

type Config struct {
	Port      string `mapstructure:"PORT" validate:"required,numeric"`
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=json console"`

	WebhookSecret   string `mapstructure:"WEBHOOK_SECRET" validate:"required"`
	MaxWebhookBytes int64  `mapstructure:"MAX_WEBHOOK_BYTES" validate:"gt=0"`
	RechargeMode    string `mapstructure:"RECHARGE_MODE" validate:"oneof=auto-execute manual-confirmation"`
	KeyPolicy       string `mapstructure:"IDEMPOTENCY_KEY_POLICY" validate:"oneof=order order_phone_amount"`

	StorageBackend   string `mapstructure:"STORAGE_BACKEND" validate:"oneof=memory postgres sqlite bolt mongo"`
	AllowMemoryStore bool   `mapstructure:"ALLOW_MEMORY_STORE"`
	DatabaseURL      string `mapstructure:"DATABASE_URL" validate:"required_if=StorageBackend postgres"`
	SQLitePath       string `mapstructure:"SQLITE_PATH" validate:"required_if=StorageBackend sqlite"`
	BoltPath         string `mapstructure:"BOLT_PATH" validate:"required_if=StorageBackend bolt"`
	MongoURI         string `mapstructure:"MONGO_URI" validate:"required_if=StorageBackend mongo"`
	MongoDatabase    string `mapstructure:"MONGO_DATABASE" validate:"required_if=StorageBackend mongo"`

	ReloadlyClientID       string        `mapstructure:"RELOADLY_CLIENT_ID" validate:"required"`
	ReloadlyClientSecret   string        `mapstructure:"RELOADLY_CLIENT_SECRET" validate:"required"`
	ReloadlyEnv            string        `mapstructure:"RELOADLY_ENV" validate:"oneof=sandbox production"`
	ReloadlyAuthURL        string        `mapstructure:"RELOADLY_AUTH_URL" validate:"omitempty,url"`
	ReloadlyAPIURL         string        `mapstructure:"RELOADLY_API_URL" validate:"omitempty,url"`
	ReloadlyUseLocalAmount bool          `mapstructure:"RELOADLY_USE_LOCAL_AMOUNT"`
	ProviderTimeout        time.Duration `mapstructure:"PROVIDER_TIMEOUT" validate:"gt=0"`
	TokenRefreshMargin     time.Duration `mapstructure:"TOKEN_REFRESH_MARGIN" validate:"gte=0"`

	RetryMaxAttempts int           `mapstructure:"RETRY_MAX_ATTEMPTS" validate:"min=1,max=10"`
	RetryBackoff     string        `mapstructure:"RETRY_BACKOFF" validate:"oneof=immediate linear"`
	RetryBaseDelay   time.Duration `mapstructure:"RETRY_BASE_DELAY" validate:"gte=0"`

	CountryCode            string   `mapstructure:"COUNTRY_CODE" validate:"len=2,alpha"`
	CountryCallingCode     string   `mapstructure:"COUNTRY_CALLING_CODE" validate:"required,numeric"`
	CountryNationalLength  int      `mapstructure:"COUNTRY_NATIONAL_LENGTH" validate:"min=4,max=15"`
	CountryAllowedPrefixes []string `mapstructure:"COUNTRY_ALLOWED_PREFIXES" validate:"dive,numeric"`
	OperatorRulesFile      string   `mapstructure:"OPERATOR_RULES_FILE"`

	MaxPerPhonePerDay int `mapstructure:"MAX_RECHARGES_PER_PHONE_PER_DAY" validate:"gte=0"`

	AdminJWTSecret string `mapstructure:"ADMIN_JWT_SECRET" validate:"omitempty,min=16"`
	AdminJWTIssuer string `mapstructure:"ADMIN_JWT_ISSUER" validate:"required"`

	ShopifyShopDomain  string `mapstructure:"SHOPIFY_SHOP_DOMAIN" validate:"required_with=ShopifyAccessToken"`
	ShopifyAccessToken string `mapstructure:"SHOPIFY_ACCESS_TOKEN" validate:"required_with=ShopifyShopDomain"`
	ShopifyAPIVersion  string `mapstructure:"SHOPIFY_API_VERSION"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("MAX_WEBHOOK_BYTES", 1<<20)
	v.SetDefault("RECHARGE_MODE", "manual-confirmation")
	v.SetDefault("IDEMPOTENCY_KEY_POLICY", "order")

	v.SetDefault("STORAGE_BACKEND", BackendSQLite)
	v.SetDefault("ALLOW_MEMORY_STORE", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SQLITE_PATH", "data/recharge-relay.db")
	v.SetDefault("BOLT_PATH", "data/recharge-relay.bolt")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "recharge_relay")

	v.SetDefault("RELOADLY_CLIENT_ID", "")
	v.SetDefault("RELOADLY_CLIENT_SECRET", "")
	v.SetDefault("RELOADLY_ENV", "sandbox")
	v.SetDefault("RELOADLY_AUTH_URL", "")
	v.SetDefault("RELOADLY_API_URL", "")
	v.SetDefault("RELOADLY_USE_LOCAL_AMOUNT", false)
	v.SetDefault("PROVIDER_TIMEOUT", "15s")
	v.SetDefault("TOKEN_REFRESH_MARGIN", "60s")

	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BACKOFF", "linear")
	v.SetDefault("RETRY_BASE_DELAY", "2s")

	v.SetDefault("COUNTRY_CODE", "HT")
	v.SetDefault("COUNTRY_CALLING_CODE", "509")
	v.SetDefault("COUNTRY_NATIONAL_LENGTH", 8)
	v.SetDefault("COUNTRY_ALLOWED_PREFIXES", []string{})
	v.SetDefault("OPERATOR_RULES_FILE", "")

	v.SetDefault("MAX_RECHARGES_PER_PHONE_PER_DAY", 0)

	v.SetDefault("ADMIN_JWT_SECRET", "")
	v.SetDefault("ADMIN_JWT_ISSUER", "recharge-relay")

	v.SetDefault("SHOPIFY_SHOP_DOMAIN", "")
	v.SetDefault("SHOPIFY_ACCESS_TOKEN", "")
	v.SetDefault("SHOPIFY_API_VERSION", "2024-10")
}

// Options controls where Load looks for files. Zero values use the working directory.
type Options struct {
	EnvFile    string
	ConfigFile string
}

// Load reads .env (if present), config.yaml (if present) and the environment, in
// increasing order of precedence. It does not validate; call Validate or ValidateStorage.
func Load(opts Options) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFile)

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || opts.ConfigFile != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.CountryCode = strings.ToUpper(strings.TrimSpace(c.CountryCode))
	prefixes := c.CountryAllowedPrefixes[:0]
	for _, p := range c.CountryAllowedPrefixes {
		for _, part := range strings.Split(p, ",") {
			if part = strings.TrimSpace(part); part != "" {
				prefixes = append(prefixes, part)
			}
		}
	}
	c.CountryAllowedPrefixes = prefixes
}

var validate = validator.New()

// Validate checks everything the serve command needs.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}
	if c.StorageBackend == BackendMemory && !c.AllowMemoryStore {
		return errors.New("config: STORAGE_BACKEND=memory loses idempotency records on restart; set ALLOW_MEMORY_STORE=true to use it anyway")
	}
	return nil
}

// ValidateStorage checks only the storage settings, for commands that touch the store.
func (c Config) ValidateStorage() error {
	fields := []string{"StorageBackend", "DatabaseURL", "SQLitePath", "BoltPath", "MongoURI", "MongoDatabase"}
	if err := validate.StructPartial(c, fields...); err != nil {
		return describe(err)
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", envName(fe.StructField()), fe.Tag()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// envName maps a struct field back to its environment variable for error messages.
func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

var envNames = func() map[string]string {
	m := map[string]string{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if tag := f.Tag.Get("mapstructure"); tag != "" {
			m[f.Name] = tag
		}
	}
	return m
}()
