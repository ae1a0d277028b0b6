/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables and an
 * optional .env file, providing a centralized and straightforward way to
 * manage application settings.
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

// Config holds all the configuration variables for the assistant-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	LedgerEventExchange  string `mapstructure:"LEDGER_EVENT_EXCHANGE"`

	RealtimeEndpointURL string `mapstructure:"REALTIME_ENDPOINT_URL"`
	RealtimeAPIKey      string `mapstructure:"REALTIME_API_KEY"`
	RealtimeDeployment  string `mapstructure:"REALTIME_DEPLOYMENT"`
	RealtimeAPIVersion  string `mapstructure:"REALTIME_API_VERSION"`

	AssistantInstructions string `mapstructure:"ASSISTANT_INSTRUCTIONS"`
	APIAuthSecret         string `mapstructure:"API_AUTH_SECRET"`
	DefaultUserID         string `mapstructure:"DEFAULT_USER_ID"`

	ToolDispatchTimeoutSeconds int `mapstructure:"TOOL_DISPATCH_TIMEOUT_SECONDS"`
	ToolRateLimitPerMinute     int `mapstructure:"TOOL_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LEDGER_EVENT_EXCHANGE", "voicebank.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "voicebank:rate_limit")
	viper.SetDefault("REALTIME_API_VERSION", "2024-10-01-preview")
	viper.SetDefault("REALTIME_DEPLOYMENT", "gpt-realtime")
	viper.SetDefault("TOOL_DISPATCH_TIMEOUT_SECONDS", 10)
	viper.SetDefault("TOOL_RATE_LIMIT_PER_MINUTE", 0)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("LEDGER_EVENT_EXCHANGE")
	_ = viper.BindEnv("REALTIME_ENDPOINT_URL")
	_ = viper.BindEnv("REALTIME_API_KEY", "REALTIME_API_KEY", "AZURE_OPENAI_KEY")
	_ = viper.BindEnv("REALTIME_DEPLOYMENT")
	_ = viper.BindEnv("REALTIME_API_VERSION")
	_ = viper.BindEnv("ASSISTANT_INSTRUCTIONS")
	_ = viper.BindEnv("API_AUTH_SECRET")
	_ = viper.BindEnv("DEFAULT_USER_ID")
	_ = viper.BindEnv("TOOL_DISPATCH_TIMEOUT_SECONDS")
	_ = viper.BindEnv("TOOL_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "voicebank:rate_limit"
	}
	if config.ToolDispatchTimeoutSeconds <= 0 {
		config.ToolDispatchTimeoutSeconds = 10
	}
	if config.ToolRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative tool rate limit configured; disabling\" per_minute=%d", config.ToolRateLimitPerMinute)
		config.ToolRateLimitPerMinute = 0
	}

	return
}
