package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Engine configuration
	Engine EngineConfig
}

// EngineConfig holds risk engine parameters and thresholds
type EngineConfig struct {
	// Model artifact
	ModelPath      string
	TrainOnStartup bool // Retrain from the customer table when no artifact exists

	// Ensemble voting weights for the two boosters and the forest
	DepthWiseWeight float64
	LeafWiseWeight  float64
	ForestWeight    float64

	// Workers
	PredictionRefreshMinutes int
	MeasurementSweepMinutes  int
	MeasurementBatchSize     int

	// Retention measurement
	DefaultMeasurementDays int

	// Analytics
	HighRiskMinScore int
	HighRiskLimit    int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "churnguard"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "churnguard"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "churnguard123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// Engine configuration
		Engine: EngineConfig{
			ModelPath:      getEnvOrDefault("ENGINE_MODEL_PATH", "data/churn_model.bin"),
			TrainOnStartup: getEnvOrDefault("ENGINE_TRAIN_ON_STARTUP", "true") == "true",

			DepthWiseWeight: getEnvFloat("ENGINE_DEPTHWISE_WEIGHT", 2.0),
			LeafWiseWeight:  getEnvFloat("ENGINE_LEAFWISE_WEIGHT", 2.0),
			ForestWeight:    getEnvFloat("ENGINE_FOREST_WEIGHT", 1.0),

			PredictionRefreshMinutes: getEnvInt("ENGINE_PREDICTION_REFRESH_MINUTES", 60),
			MeasurementSweepMinutes:  getEnvInt("ENGINE_MEASUREMENT_SWEEP_MINUTES", 30),
			MeasurementBatchSize:     getEnvInt("ENGINE_MEASUREMENT_BATCH_SIZE", 100),

			DefaultMeasurementDays: getEnvInt("ENGINE_MEASUREMENT_DAYS", 30),

			HighRiskMinScore: getEnvInt("ENGINE_HIGH_RISK_MIN_SCORE", 70),
			HighRiskLimit:    getEnvInt("ENGINE_HIGH_RISK_LIMIT", 100),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
