package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Secret          string
	HTTPPort        string
	DatabaseDriver  string
	DatabaseDSN     string
	MaxOpenConns    int
	RedisAddr       string
	SearchCacheTTL  time.Duration
	StaticBaseURL   string
	CatalogCSV      string
	LogLevel        string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// Load reads configuration from environment variables with reasonable defaults.
// A .env file in the working directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	secret := getEnv("SECRET", "dev_secret")

	port := getEnv("HTTP_PORT", "8080")
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	if driver != "sqlite" && driver != "pgx" {
		log.Printf("unsupported DATABASE_DRIVER %q, defaulting to sqlite", driver)
		driver = "sqlite"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		if driver == "sqlite" {
			dsn = "file:pharmahub.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		} else {
			host := getEnv("HOST", "localhost")
			user := getEnv("USER", "postgres")
			dbPort := getEnv("PORT", "5432")
			name := getEnv("NAME", "pharmahub")
			password := os.Getenv("PASSWORD")
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, dbPort, name)
		}
	}

	maxOpen := getEnvInt("DB_MAX_OPEN_CONNS", 10)
	if driver == "sqlite" {
		maxOpen = 1
	}

	var origins []string
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Secret:          secret,
		HTTPPort:        port,
		DatabaseDriver:  driver,
		DatabaseDSN:     dsn,
		MaxOpenConns:    maxOpen,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		SearchCacheTTL:  getEnvDuration("SEARCH_CACHE_TTL", 30*time.Second),
		StaticBaseURL:   strings.TrimRight(getEnv("STATIC_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		CatalogCSV:      os.Getenv("CATALOG_CSV"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     origins,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
		log.Printf("invalid %s value %q, defaulting to %d", key, value, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
		log.Printf("invalid %s value %q, defaulting to %s", key, value, fallback)
	}
	return fallback
}
