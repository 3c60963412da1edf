package config

import (
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Job execution
	TrainingDir    string // per-job working directories live under here
	WorkerBin      string // worker process executable
	TrainerCommand string // external ML trainer CLI; empty selects the simulated trainer
	Device         string

	// Progress polling and streaming
	PollInterval      time.Duration
	HeartbeatInterval time.Duration

	// How long terminal progress state and working directories are kept
	// around for late subscribers before cleanup.
	Retention time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DatabaseURL:       getEnv("DATABASE_URL", "postgres://localhost/training_orchestrator?sslmode=disable"),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		TrainingDir:       getEnv("TRAINING_DIR", "data/training"),
		WorkerBin:         getEnv("WORKER_BIN", "training-worker"),
		TrainerCommand:    getEnv("TRAINER_COMMAND", ""),
		Device:            getEnv("DEVICE", "auto"),
		PollInterval:      getDuration("POLL_INTERVAL", 500*time.Millisecond),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		Retention:         getDuration("RETENTION", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
