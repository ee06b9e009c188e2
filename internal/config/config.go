package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// Platform adapter settings. Each side is either a REST platform or a
	// SQL-backed one, selected by type.
	PlatformAType  string // "rest" or "postgres"
	PlatformAURL   string
	PlatformAToken string
	PlatformADSN   string
	PlatformBType  string
	PlatformBURL   string
	PlatformBToken string
	PlatformBDSN   string

	// Sync manager tuning.
	BatchSize   int
	WorkerCount int
	MaxRetries  int
	RetryDelay  time.Duration

	// Scheduler tuning.
	SchedulerInterval time.Duration
	MaxConcurrentJobs int
	ScheduleStatePath string

	// Entity status cache.
	CacheSize int
	CacheTTL  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-syncbridge"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-syncbridge"),

		PlatformAType:  getEnv("PLATFORM_A_TYPE", "rest"),
		PlatformAURL:   getEnv("PLATFORM_A_URL", "http://localhost:9001"),
		PlatformAToken: getEnv("PLATFORM_A_TOKEN", ""),
		PlatformADSN:   getEnv("PLATFORM_A_DSN", ""),
		PlatformBType:  getEnv("PLATFORM_B_TYPE", "rest"),
		PlatformBURL:   getEnv("PLATFORM_B_URL", "http://localhost:9002"),
		PlatformBToken: getEnv("PLATFORM_B_TOKEN", ""),
		PlatformBDSN:   getEnv("PLATFORM_B_DSN", ""),

		BatchSize:   getEnvInt("BATCH_SIZE", 50),
		WorkerCount: getEnvInt("WORKER_COUNT", 4),
		MaxRetries:  getEnvInt("MAX_RETRIES", 3),
		RetryDelay:  time.Duration(getEnvInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,

		SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_SEC", 60)) * time.Second,
		MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", 3),
		ScheduleStatePath: getEnv("SCHEDULE_STATE_PATH", "./data/scheduler_state.json"),

		CacheSize: getEnvInt("CACHE_SIZE", 10000),
		CacheTTL:  time.Duration(getEnvInt("CACHE_TTL_SEC", 300)) * time.Second,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
