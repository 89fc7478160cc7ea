package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers
const (
	DriverMongoDB = "mongodb"
	DriverMemory  = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Storage   StorageConfig
	JWT       JWTConfig
	Paystack  PaystackConfig
	Kafka     KafkaConfig
	Log       LogConfig
	Settings  SettingsConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string
	AllowedHosts    []string
	GinMode         string
	ShutdownTimeout time.Duration
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int
}

// PaystackConfig holds payment gateway configuration
type PaystackConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	MockAPI     bool
	Timeout     time.Duration
}

// KafkaConfig holds event publishing configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// SettingsConfig controls the platform settings cache and the poll expiry sweep
type SettingsConfig struct {
	RefreshInterval     time.Duration
	ExpirySweepInterval time.Duration
}

// ReconcileConfig paces bulk reconciliation against the payment gateway
type ReconcileConfig struct {
	RatePerSecond float64
	Burst         int
	StaleAfter    time.Duration
	BatchSize     int
}

// LoadConfig loads configuration from an optional config.yaml and environment variables.
// Environment keys use underscores for nesting, e.g. MONGODB_URI or PAYSTACK_SECRETKEY.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath(GetEnv("CONFIG_DIR", "./config"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Lists set through the environment arrive as one comma-separated string
	cfg.Server.AllowedHosts = splitList(cfg.Server.AllowedHosts)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Storage.Driver {
	case DriverMongoDB:
		if c.MongoDB.URI == "" || c.MongoDB.Database == "" {
			return errors.New("MONGODB_URI and MONGODB_DATABASE are required for the mongodb storage driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if !c.Paystack.MockAPI && c.Paystack.SecretKey == "" {
		return errors.New("PAYSTACK_SECRETKEY is required unless PAYSTACK_MOCKAPI is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when Kafka is enabled")
	}
	return nil
}

// setDefaults sets default values for configuration. Every key needs a default so
// that AutomaticEnv can bind it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "4000")
	v.SetDefault("Server.AllowedHosts", []string{"http://localhost:3000"})
	v.SetDefault("Server.GinMode", "release")
	v.SetDefault("Server.ShutdownTimeout", 15*time.Second)
	v.SetDefault("MongoDB.URI", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("MongoDB.Database", "pollstake")
	v.SetDefault("Storage.Driver", DriverMongoDB)
	v.SetDefault("JWT.Secret", "")
	v.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	v.SetDefault("Paystack.BaseURL", "https://api.paystack.co")
	v.SetDefault("Paystack.SecretKey", "")
	v.SetDefault("Paystack.CallbackURL", "")
	v.SetDefault("Paystack.MockAPI", true)
	v.SetDefault("Paystack.Timeout", 15*time.Second)
	v.SetDefault("Kafka.Enabled", false)
	v.SetDefault("Kafka.Brokers", []string{})
	v.SetDefault("Kafka.Topic", "pollstake.events")
	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "json")
	v.SetDefault("Log.File", "")
	v.SetDefault("Settings.RefreshInterval", 30*time.Second)
	v.SetDefault("Settings.ExpirySweepInterval", time.Minute)
	v.SetDefault("Reconcile.RatePerSecond", 5.0)
	v.SetDefault("Reconcile.Burst", 5)
	v.SetDefault("Reconcile.StaleAfter", 30*time.Minute)
	v.SetDefault("Reconcile.BatchSize", 100)
}
