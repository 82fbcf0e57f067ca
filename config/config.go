package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gorm.io/gorm"

	"github.com/innerchild2401/qr-menu-sub004/database"
	"github.com/innerchild2401/qr-menu-sub004/utils"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	GinMode  string `envconfig:"GIN_MODE" default:"debug"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver string `envconfig:"DB_DRIVER" default:"mysql"`
	DBDSN    string `envconfig:"DB_DSN" default:"root:@tcp(127.0.0.1:3306)/table_orders?charset=utf8mb4&parseTime=True&loc=Local"`

	JWTSecret     string `envconfig:"JWT_SECRET"`
	AllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"*"`

	RestaurantName       string  `envconfig:"RESTAURANT_NAME" default:"Our restaurant"`
	ServiceChargePercent float64 `envconfig:"SERVICE_CHARGE_PERCENT" default:"0"`

	MergeMaxAttempts int           `envconfig:"MERGE_MAX_ATTEMPTS" default:"5"`
	MergeTimeout     time.Duration `envconfig:"MERGE_TIMEOUT" default:"3s"`

	RedisAddr    string `envconfig:"REDIS_ADDR"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"table-orders"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"10"`
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Debug("no .env file loaded, using process environment")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case database.DriverMySQL, database.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.MergeMaxAttempts < 1 {
		return fmt.Errorf("MERGE_MAX_ATTEMPTS must be at least 1")
	}
	if c.MergeTimeout <= 0 {
		return fmt.Errorf("MERGE_TIMEOUT must be positive")
	}
	if c.ServiceChargePercent < 0 || c.ServiceChargePercent > 100 {
		return fmt.Errorf("SERVICE_CHARGE_PERCENT must be between 0 and 100")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

func InitDB(cfg Config) (*gorm.DB, error) {
	return database.Open(strings.ToLower(cfg.DBDriver), cfg.DBDSN)
}
