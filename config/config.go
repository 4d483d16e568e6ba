package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectoenv"
)

// Config is the portal service configuration, bound from the environment.
type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,PATCH,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Document bridge endpoint; empty runs the portal unconfigured from local state
	StoreEndpoint string `env:"STORE_ENDPOINT" env-default:""`
	// Default namespace (dbName) sent with every bridge request
	StoreNamespace string        `env:"STORE_NAMESPACE" env-default:"MessengerFlow"`
	StoreAPIKey    string        `env:"STORE_API_KEY" env-default:""`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" env-default:"15s"`

	// Messaging platform
	GraphBaseURL         string        `env:"GRAPH_BASE_URL" env-default:"https://graph.facebook.com"`
	GraphVersion         string        `env:"GRAPH_VERSION" env-default:"v22.0"`
	GraphTimeout         time.Duration `env:"GRAPH_TIMEOUT" env-default:"30s"`
	GraphMaxMessagePages int           `env:"GRAPH_MAX_MESSAGE_PAGES" env-default:"10"`

	// Reconciliation
	SyncEnabled        bool          `env:"SYNC_ENABLED" env-default:"true"`
	SyncInterval       time.Duration `env:"SYNC_INTERVAL" env-default:"20s"`
	SyncLimit          int           `env:"SYNC_LIMIT" env-default:"50"`
	SyncProfiles       bool          `env:"SYNC_INCLUDE_PROFILES" env-default:"true"`
	CorrelationWindow  time.Duration `env:"CORRELATION_WINDOW" env-default:"2m"`
	RateLimitBackoff   time.Duration `env:"PLATFORM_RATE_LIMIT_BACKOFF" env-default:"5m"`
	PlatformCallLimit  int64         `env:"PLATFORM_CALL_LIMIT" env-default:"200"`
	PlatformCallWindow time.Duration `env:"PLATFORM_CALL_WINDOW" env-default:"1h"`
	SyncLockTTL        time.Duration `env:"SYNC_LOCK_TTL" env-default:"2m"`

	// Accounts; the fallback administrator email and password are required
	FallbackAdminName     string `env:"FALLBACK_ADMIN_NAME" env-default:"Master Admin"`
	FallbackAdminEmail    string `env:"FALLBACK_ADMIN_EMAIL" env-default:""`
	FallbackAdminPassword string `env:"FALLBACK_ADMIN_PASSWORD" env-default:""`
	StaticAgentsFile      string `env:"STATIC_AGENTS_FILE" env-default:""`

	// Session storage: "file" keeps session and preferences under StateDir, "redis" in Redis
	StateBackend string `env:"STATE_BACKEND" env-default:"file"`
	StateDir     string `env:"STATE_DIR" env-default:".clover"`

	// Redis backs the sync lock and the platform rate gate when enabled
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated); empty logs notifications instead
	KafkaBrokers            string `env:"KAFKA_BROKERS" env-default:""`
	KafkaNotificationsTopic string `env:"KAFKA_NOTIFICATIONS_TOPIC" env-default:"portal-notifications"`

	// Tracing settings
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`
}

// BridgeConfig configures the document bridge binary.
type BridgeConfig struct {
	AppName            string   `env:"APP_NAME" env-default:"clover-docbridge"`
	Port               int      `env:"PORT" env-default:"3001"`
	PrettyLogs         bool     `env:"PRETTY_LOGS" env-default:"false"`
	AllowOrigins       []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	StartupMaxAttempts int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	APIKey             string   `env:"BRIDGE_API_KEY" env-default:""`

	// Backend is "mongo", "postgres" or "memory"
	Backend      string        `env:"BRIDGE_BACKEND" env-default:"mongo"`
	MongoURI     string        `env:"MONGODB_URI" env-default:"mongodb://localhost:27017"`
	MongoTimeout time.Duration `env:"MONGODB_TIMEOUT" env-default:"15s"`

	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`
}

// Load binds the portal config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the portal cannot run with. The fallback administrator must
// always be able to log in, even with the document store unreachable.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.FallbackAdminEmail) == "" {
		missing = append(missing, "FALLBACK_ADMIN_EMAIL")
	}
	if c.FallbackAdminPassword == "" {
		missing = append(missing, "FALLBACK_ADMIN_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	switch c.StateBackend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
	return nil
}

// LoadBridge binds the document bridge configuration.
func LoadBridge() (BridgeConfig, error) {
	var cfg BridgeConfig
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
