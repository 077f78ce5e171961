package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers    []string
	KafkaEventTopic string

	// Legacy mirror database service
	LegacyBaseURL string
	LegacyTimeout time.Duration

	// Hospital integration engines notified of new patients
	IntegrationBaseURLs []string
	IntegrationTimeout  time.Duration

	// Institution settings file (YAML); empty uses the compiled-in defaults
	InstitutionSettingsPath string

	// Databank consent seeding
	DatabankEnabled bool
	DatabankBaseURL string

	// Registration
	RegistrationCodeValidity time.Duration
	RegistrationMaxAttempts  int
	VerificationCodeTTL      time.Duration

	// Sweeper
	SweepLockTTL time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "opal"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "opal123"),
		PostgresDB:       getEnv("POSTGRES_DB", "opal"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:    getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaEventTopic: getEnv("KAFKA_EVENT_TOPIC", "opal.portal.events"),

		LegacyBaseURL: getEnv("LEGACY_BASE_URL", "http://localhost:8081"),
		LegacyTimeout: getDuration("LEGACY_TIMEOUT", 10*time.Second),

		IntegrationBaseURLs: getStringSliceEnv("INTEGRATION_BASE_URLS", nil),
		IntegrationTimeout:  getDuration("INTEGRATION_TIMEOUT", 10*time.Second),

		InstitutionSettingsPath: getEnv("INSTITUTION_SETTINGS_PATH", ""),

		DatabankEnabled: getBoolEnv("DATABANK_ENABLED", false),
		DatabankBaseURL: getEnv("DATABANK_BASE_URL", ""),

		RegistrationCodeValidity: getDuration("REGISTRATION_CODE_VALIDITY", 72*time.Hour),
		RegistrationMaxAttempts:  getIntEnv("REGISTRATION_MAX_ATTEMPTS", 3),
		VerificationCodeTTL:      getDuration("VERIFICATION_CODE_TTL", 10*time.Minute),

		SweepLockTTL: getDuration("SWEEP_LOCK_TTL", 15*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
