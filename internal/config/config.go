package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects the SQL dialect used by the repository layer.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	API      APIConfig
	Uploads  UploadsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// DatabaseConfig holds backend selection and connection values.
type DatabaseConfig struct {
	Backend        Backend
	PostgresDSN    string
	SQLitePath     string
	MaxConns       int32
	MinConns       int32
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis and
// falls the session store back to process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines identity provider and session parameters.
type AuthConfig struct {
	ProviderURL            string
	ProviderTimeoutSeconds int
	AllowedGroups          []string
	SuperadminLogin        string
	SuperadminPassword     string
	SessionSecret          string
	SessionTTLHours        int
}

// APIConfig guards the public query API.
type APIConfig struct {
	Secret string
}

// UploadsConfig controls attachment storage locations and limits.
type UploadsConfig struct {
	PublicDir    string
	StagingDir   string
	TicketsDir   string
	LegacyTmpDir string
	MaxFiles     int
	MaxBatchSize int64
}

// Load reads configuration from environment variables, applying defaults where
// possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	publicDir := getEnv("PUBLIC_DIR", "public")

	backend := Backend(getEnv("DB_BACKEND", ""))
	switch backend {
	case BackendPostgres, BackendSQLite:
	case "":
		// Mirror the historical behavior: Postgres when a DSN is present,
		// SQLite otherwise.
		if os.Getenv("POSTGRES_DSN") != "" {
			backend = BackendPostgres
		} else {
			backend = BackendSQLite
		}
	default:
		return nil, fmt.Errorf("unknown DB_BACKEND %q", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "itsupport-helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "3000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Database: DatabaseConfig{
			Backend:        backend,
			PostgresDSN:    os.Getenv("POSTGRES_DSN"),
			SQLitePath:     getEnv("SQLITE_PATH", "data/itsupport.db"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("APP_ENV", "development") == "development",
		},
		Auth: AuthConfig{
			ProviderURL:            getEnv("LDAP_AUTH_URL", "https://ldap.itschool25.ru/api/auth"),
			ProviderTimeoutSeconds: getEnvAsInt("LDAP_TIMEOUT_SECONDS", 10),
			AllowedGroups:          splitList(os.Getenv("ALLOWED_GROUPS")),
			SuperadminLogin:        getEnv("SUPERADMIN_USERNAME", "superadmin"),
			SuperadminPassword:     os.Getenv("SUPERADMIN_PASSWORD"),
			SessionSecret:          getEnv("SESSION_SECRET", "itsupport-secret-key"),
			SessionTTLHours:        getEnvAsInt("SESSION_TTL_HOURS", 24),
		},
		API: APIConfig{
			Secret: os.Getenv("API_SECRET"),
		},
		Uploads: UploadsConfig{
			PublicDir:    publicDir,
			StagingDir:   getEnv("UPLOAD_STAGING_DIR", publicDir+"/staging"),
			TicketsDir:   getEnv("UPLOAD_TICKETS_DIR", publicDir+"/tickets"),
			LegacyTmpDir: getEnv("UPLOAD_TEMP_DIR", publicDir+"/temp_uploads"),
			MaxFiles:     getEnvAsInt("UPLOAD_MAX_FILES", 7),
			MaxBatchSize: int64(getEnvAsInt("UPLOAD_MAX_BATCH_MB", 50)) * 1024 * 1024,
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Development reports whether error details may be exposed to clients.
func (a AppConfig) Development() bool {
	return a.Env == "development"
}

// ProviderTimeout returns the identity provider call timeout.
func (a AuthConfig) ProviderTimeout() time.Duration {
	if a.ProviderTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.ProviderTimeoutSeconds) * time.Second
}

// SessionTTL returns the fixed session lifetime.
func (a AuthConfig) SessionTTL() time.Duration {
	if a.SessionTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.SessionTTLHours) * time.Hour
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
