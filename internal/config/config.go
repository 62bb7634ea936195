/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the point-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	PointEventExchange    string `mapstructure:"POINT_EVENT_EXCHANGE"`
	InternalAPIKey        string `mapstructure:"INTERNAL_API_KEY"`
	PolicyCachePrefix     string `mapstructure:"POLICY_CACHE_PREFIX"`
	PolicyCacheTTLSeconds int    `mapstructure:"POLICY_CACHE_TTL_SECONDS"`
	PolicyRefreshSchedule string `mapstructure:"POLICY_REFRESH_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("POINT_EVENT_EXCHANGE", "point_events")
	viper.SetDefault("POLICY_CACHE_PREFIX", "pointsystem:policy")
	viper.SetDefault("POLICY_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("POLICY_REFRESH_SCHEDULE", "@every 5m")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("POINT_EVENT_EXCHANGE")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "POINT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("POLICY_CACHE_PREFIX")
	_ = viper.BindEnv("POLICY_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("POLICY_REFRESH_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	if config.InternalAPIKey == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("POINT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.PolicyCachePrefix = strings.TrimSpace(config.PolicyCachePrefix)
	if config.PolicyCachePrefix == "" {
		config.PolicyCachePrefix = "pointsystem:policy"
	}
	if config.PolicyCacheTTLSeconds <= 0 {
		config.PolicyCacheTTLSeconds = 60
	}
	if strings.TrimSpace(config.PolicyRefreshSchedule) == "" {
		config.PolicyRefreshSchedule = "@every 5m"
	}

	return
}
