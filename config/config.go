package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPrefix       string
	PendingQueue      string
	ProcessingQueue   string
	FailedQueue       string
	WorkerCount       int
	OptimizerURL      string
	ConverterCommand  string
	ConverterArgs     []string
	HostURL           string
	HTTPAddr          string
	S3Bucket          string
	S3Region          string
	AWSS3AccessKey    string
	AWSS3SecretKey    string
	S3Endpoint        string
	S3UsePathStyle    bool
	DatabaseURL       string
	ConversionTimeout int
	MaxRetries        int
	LogLevel          string
	LogFormat         string
}

// LoadEnvFile preloads variables from a dotenv file. Variables already set
// in the process environment win. A missing default file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func Load() *Config {
	redisPrefix := getEnv("REDIS_PREFIX", "")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "svgass")
	dbUser := getEnv("DB_USERNAME", "svgass")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq accepts "key=value" strings, which sidesteps URI escaping of
	// special characters in passwords.
	var dbURL string
	if dbPassword != "" {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbPassword, dbSSLMode,
		)
	} else {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbSSLMode,
		)
	}
	if rootCert := getEnv("DB_SSLROOTCERT", ""); rootCert != "" {
		dbURL += fmt.Sprintf(" sslrootcert=%s", rootCert)
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_CONVERSION_DB", 4),
		RedisPrefix:   redisPrefix,
		PendingQueue:  applyPrefix(getEnv("SVGASS_PENDING_QUEUE", "svgass:pending"), redisPrefix),
		ProcessingQueue: applyPrefix(
			getEnv("SVGASS_PROCESSING_QUEUE", "svgass:processing"),
			redisPrefix,
		),
		FailedQueue: applyPrefix(
			getEnv("SVGASS_FAILED_QUEUE", "svgass:failed"),
			redisPrefix,
		),
		WorkerCount:      getEnvInt("SVGASS_WORKER_COUNT", 2),
		OptimizerURL:     getEnv("OPTIMIZER_URL", ""),
		ConverterCommand: getEnv("CONVERTER_COMMAND", "node"),
		ConverterArgs:    getEnvList("CONVERTER_ARGS", []string{"lib/worker.js"}),
		HostURL:          getEnv("HOST_URL", ""),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		S3Bucket:         getEnv("AWS_BUCKET", "svgass"),
		// S3_* wins over the legacy AWS_* names
		S3Region:          getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey:    getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey:    getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),
		DatabaseURL:       dbURL,
		ConversionTimeout: getEnvInt("CONVERSION_TIMEOUT", 60),
		MaxRetries:        getEnvInt("CONVERSION_MAX_RETRIES", 3),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvList splits on whitespace. Arguments containing spaces are not
// supported.
func getEnvList(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Fields(value)
	}
	return fallback
}

func applyPrefix(key string, prefix string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
