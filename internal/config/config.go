package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/adapter/messaging"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type Config struct {
	AppEnv   string
	LogLevel string

	HTTPAddr string
	GRPCAddr string

	StorageDriver string
	MySQLDSN      string
	RedisAddr     string

	KafkaBrokers    string
	KafkaOrderTopic string

	Token      auth.Config
	BcryptCost int

	EventWorkers   int
	EventQueueSize int
	LockTTL        time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		AppEnv:          getEnv("APP_ENV", "dev"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
		StorageDriver:   strings.ToLower(getEnv("STORAGE_DRIVER", StorageMySQL)),
		MySQLDSN:        getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/ecommerce?parseTime=true"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaOrderTopic: getEnv("KAFKA_ORDER_TOPIC", messaging.DefaultOrderTopic),
		Token: auth.Config{
			Secret:   []byte(os.Getenv("JWT_SECRET")),
			Lifetime: getEnvDuration("JWT_LIFETIME", auth.DefaultLifetime),
			Issuer:   getEnv("JWT_ISSUER", "ecommerce-api"),
		},
		BcryptCost:     getEnvInt("BCRYPT_COST", bcrypt.DefaultCost),
		EventWorkers:   getEnvInt("EVENT_WORKERS", 4),
		EventQueueSize: getEnvInt("EVENT_QUEUE_SIZE", 1024),
		LockTTL:        getEnvDuration("LOCK_TTL", 5*time.Second),
	}

	if len(cfg.Token.Secret) == 0 {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.StorageDriver != StorageMySQL && cfg.StorageDriver != StorageMemory {
		return Config{}, errors.New("STORAGE_DRIVER must be mysql or memory")
	}
	if cfg.EventWorkers < 1 {
		cfg.EventWorkers = 1
	}
	if cfg.EventQueueSize < 1 {
		cfg.EventQueueSize = 1
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
