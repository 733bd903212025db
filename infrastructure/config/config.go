package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreDynamoDB = "dynamodb"

	FanoutLocal      = "local"
	FanoutRedis      = "redis"
	FanoutAPIGateway = "apigateway"

	MetricsPrometheus = "prometheus"
	MetricsCloudWatch = "cloudwatch"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`

	// Persistence
	StoreDriver         string `yaml:"store_driver"`
	DatabaseURL         string `yaml:"database_url"`
	AutoMigrate         bool   `yaml:"auto_migrate"`
	StoreCircuitBreaker bool   `yaml:"store_circuit_breaker"`

	// AWS configuration
	AWSRegion         string `yaml:"aws_region"`
	DynamoDBTable     string `yaml:"dynamodb_table"`
	ConnectionsTable  string `yaml:"connections_table"`
	WebSocketEndpoint string `yaml:"websocket_endpoint"`
	EventBusName      string `yaml:"event_bus_name"`

	// Fanout across replicas
	FanoutDriver  string `yaml:"fanout_driver"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`

	// Sessions
	SessionRateLimit float64  `yaml:"session_rate_limit"`
	SessionRateBurst int      `yaml:"session_rate_burst"`
	AllowedOrigins   []string `yaml:"allowed_origins"`

	// Feature flags
	EnableEvents  bool `yaml:"enable_events"`
	EnableMetrics bool `yaml:"enable_metrics"`
	EnableTracing bool `yaml:"enable_tracing"`
	EnableCORS    bool `yaml:"enable_cors"`

	// MetricsBackend receives intent and query metrics. Lambda functions
	// use cloudwatch since nothing scrapes them.
	MetricsBackend string `yaml:"metrics_backend"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		ServerAddress:    ":8080",
		Environment:      "development",
		LogLevel:         "info",
		StoreDriver:      StoreMemory,
		AWSRegion:        "us-west-2",
		DynamoDBTable:    "notecanvas",
		ConnectionsTable: "notecanvas-connections",
		EventBusName:     "notecanvas-events",
		FanoutDriver:     FanoutLocal,
		RedisAddr:        "localhost:6379",
		RedisChannel:     "notecanvas:events",
		SessionRateLimit: 50,
		SessionRateBurst: 100,
		AllowedOrigins:   []string{"*"},
		EnableMetrics:    true,
		EnableCORS:       true,
		MetricsBackend:   MetricsPrometheus,
	}
}

// LoadConfig reads .env from the working directory, then the YAML file
// named by CONFIG_FILE, then the environment. Later sources win.
func LoadConfig() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
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
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", c.StoreDriver))
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.AutoMigrate = getEnvBool("AUTO_MIGRATE", c.AutoMigrate)
	c.StoreCircuitBreaker = getEnvBool("STORE_CIRCUIT_BREAKER", c.StoreCircuitBreaker)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.ConnectionsTable = getEnv("CONNECTIONS_TABLE", c.ConnectionsTable)
	c.WebSocketEndpoint = getEnv("WEBSOCKET_ENDPOINT", c.WebSocketEndpoint)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)

	c.FanoutDriver = strings.ToLower(getEnv("FANOUT_DRIVER", c.FanoutDriver))
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RedisChannel = getEnv("REDIS_CHANNEL", c.RedisChannel)

	c.SessionRateLimit = getEnvFloat("SESSION_RATE_LIMIT", c.SessionRateLimit)
	c.SessionRateBurst = getEnvInt("SESSION_RATE_BURST", c.SessionRateBurst)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	c.EnableEvents = getEnvBool("ENABLE_EVENTS", c.EnableEvents)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	c.MetricsBackend = strings.ToLower(getEnv("METRICS_BACKEND", c.MetricsBackend))
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.FanoutDriver {
	case FanoutLocal:
	case FanoutRedis:
		if c.RedisAddr == "" || c.RedisChannel == "" {
			return fmt.Errorf("REDIS_ADDR and REDIS_CHANNEL are required for the redis fanout")
		}
	case FanoutAPIGateway:
		if c.StoreDriver != StoreDynamoDB || c.ConnectionsTable == "" {
			return fmt.Errorf("the apigateway fanout needs the dynamodb store and CONNECTIONS_TABLE")
		}
		if c.WebSocketEndpoint == "" {
			return fmt.Errorf("WEBSOCKET_ENDPOINT is required for the apigateway fanout")
		}
	default:
		return fmt.Errorf("unknown FANOUT_DRIVER %q", c.FanoutDriver)
	}

	switch c.MetricsBackend {
	case MetricsPrometheus, MetricsCloudWatch:
	default:
		return fmt.Errorf("unknown METRICS_BACKEND %q", c.MetricsBackend)
	}

	if c.EnableEvents && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required when events are enabled")
	}
	if c.SessionRateLimit <= 0 || c.SessionRateBurst <= 0 {
		return fmt.Errorf("SESSION_RATE_LIMIT and SESSION_RATE_BURST must be positive")
	}
	if c.IsProduction() && c.StoreDriver == StoreMemory {
		return fmt.Errorf("the memory store cannot be used in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
