package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Logger   Logger   `mapstructure:"logger"`
	Market   Market   `mapstructure:"market"`
	Trading  Trading  `mapstructure:"trading"`
	Email    Email    `mapstructure:"email"`
	Reports  Reports  `mapstructure:"reports"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the sqlite store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Market holds the configuration for the simulated market data service.
type Market struct {
	TickInterval int                `mapstructure:"tick_interval"` // chart refresh cadence, seconds
	HistoryYears int                `mapstructure:"history_years"` // span of the generated daily history
	Symbols      []string           `mapstructure:"symbols"`       // optional override of the built-in symbol list
	TodayPrices  map[string]float64 `mapstructure:"today_prices"`  // optional override of the built-in reference prices
}

// Trading holds defaults applied to new accounts.
type Trading struct {
	StartingCash float64 `mapstructure:"starting_cash"` // used when registration omits an amount
}

// Email holds the configuration for the verification-code mail API.
type Email struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	Sender         string  `mapstructure:"sender"`
	DemoMode       bool    `mapstructure:"demo_mode"` // log codes instead of sending
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Reports holds the configuration for closed-trade report output.
type Reports struct {
	Dir string `mapstructure:"dir"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("server.port", 8085)
	viper.SetDefault("database.dsn", "invertrack.db")
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("market.tick_interval", 3)
	viper.SetDefault("market.history_years", 3)
	viper.SetDefault("trading.starting_cash", 10000)
	viper.SetDefault("email.demo_mode", true)
	viper.SetDefault("email.rate_limit", 1) // sends per second
	viper.SetDefault("email.rate_limit_burst", 3)
	viper.SetDefault("reports.dir", "reports")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
