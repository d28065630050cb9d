package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type SchedulerConfig struct {
	Enabled      bool
	PollInterval time.Duration
	LockKey      string
	LockTTL      time.Duration
	Location     *time.Location
}

type AlertConfig struct {
	QueueKey    string
	QueueBuffer int
	PollTimeout time.Duration
	Workers     int
}

func LoadSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Enabled:      getEnvAsBool("SCHEDULER_ENABLED", true),
		PollInterval: getEnvAsDuration("SCHEDULER_POLL_INTERVAL", 1*time.Hour),
		LockKey:      getEnv("SCHEDULER_LOCK_KEY", "scheduler:due-check"),
		LockTTL:      getEnvAsDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
		Location:     getEnvAsLocation("SCHEDULER_TIMEZONE", time.UTC),
	}
}

func LoadAlertConfig() *AlertConfig {
	return &AlertConfig{
		QueueKey:    getEnv("ALERT_QUEUE_KEY", "alert_events"),
		QueueBuffer: getEnvAsInt("ALERT_QUEUE_BUFFER", 256),
		PollTimeout: getEnvAsDuration("ALERT_QUEUE_POLL_TIMEOUT", 5*time.Second),
		Workers:     getEnvAsInt("ALERT_WORKERS", 1),
	}
}

// StoreDriver is "postgres" or "memory".
func StoreDriver() string {
	return getEnv("STORE_DRIVER", "postgres")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsLocation(key string, defaultVal *time.Location) *time.Location {
	if val := os.Getenv(key); val != "" {
		loc, err := time.LoadLocation(val)
		if err == nil {
			return loc
		}
		zap.L().Warn("Unknown time zone, using default",
			zap.String("key", key),
			zap.String("value", val),
			zap.String("default", defaultVal.String()))
	}
	return defaultVal
}
