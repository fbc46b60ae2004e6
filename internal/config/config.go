package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Redis
	RedisURL     string `mapstructure:"REDIS_URL"`
	RedisEnabled bool   `mapstructure:"REDIS_ENABLED"`

	// Simulation
	MaxIterations     int    `mapstructure:"MAX_ITERATIONS"`
	SimulationWorkers int    `mapstructure:"SIMULATION_WORKERS"`
	SamplerBackend    string `mapstructure:"SAMPLER_BACKEND"` // "scalar" or "gonum"

	// Calibration
	AutoTuneEnabled    bool    `mapstructure:"AUTO_TUNE_ENABLED"`
	CalibrationTrigger string  `mapstructure:"CALIBRATION_TRIGGER"` // "count", "daily", "weekly"
	CalibrationEvery   int     `mapstructure:"CALIBRATION_EVERY"`
	CalibrationCron    string  `mapstructure:"CALIBRATION_CRON"`
	TuningStrategy     string  `mapstructure:"TUNING_STRATEGY"` // "adaptive", "conservative", "gradient"
	MinSampleSize      int     `mapstructure:"MIN_SAMPLE_SIZE"`
	PerformanceWindow  int     `mapstructure:"PERFORMANCE_WINDOW"`
	AlertROIThreshold  float64 `mapstructure:"ALERT_ROI_THRESHOLD"`
	AlertBrierThreshold float64 `mapstructure:"ALERT_BRIER_THRESHOLD"`

	// Persistence
	ParameterFile     string `mapstructure:"PARAMETER_FILE"`
	PredictionLogFile string `mapstructure:"PREDICTION_LOG_FILE"`

	// Feature flags
	SupportedLeagues []string `mapstructure:"SUPPORTED_LEAGUES"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8084")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("REDIS_ENABLED", false)
	viper.SetDefault("MAX_ITERATIONS", 10000)
	viper.SetDefault("SIMULATION_WORKERS", 4)
	viper.SetDefault("SAMPLER_BACKEND", "scalar")
	viper.SetDefault("AUTO_TUNE_ENABLED", true)
	viper.SetDefault("CALIBRATION_TRIGGER", "count")
	viper.SetDefault("CALIBRATION_EVERY", 20)
	viper.SetDefault("CALIBRATION_CRON", "0 6 * * *") // daily at 06:00
	viper.SetDefault("TUNING_STRATEGY", "adaptive")
	viper.SetDefault("MIN_SAMPLE_SIZE", 50)
	viper.SetDefault("PERFORMANCE_WINDOW", 100)
	viper.SetDefault("ALERT_ROI_THRESHOLD", -0.15)
	viper.SetDefault("ALERT_BRIER_THRESHOLD", 0.28)
	viper.SetDefault("PARAMETER_FILE", "data/parameters.json")
	viper.SetDefault("PREDICTION_LOG_FILE", "data/predictions.json")
	viper.SetDefault("SUPPORTED_LEAGUES", "nba,ncaab,nfl,nhl,mlb")

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse supported leagues from comma-separated string
	if leaguesStr := viper.GetString("SUPPORTED_LEAGUES"); leaguesStr != "" {
		config.SupportedLeagues = strings.Split(leaguesStr, ",")
	}

	return &config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
