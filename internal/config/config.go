package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrMissingDatabaseURI is returned by Load when MONGODB_URI is not set.
var ErrMissingDatabaseURI = errors.New("MONGODB_URI is not defined in environment variables")

// Origins that are always allowed in addition to FRONTEND_URL.
var fixedOrigins = []string{
	"http://localhost:5000",
	"https://ea-w4if.onrender.com",
}

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string        `env:"NODE_ENV" envDefault:"development"`
	Port             string        `env:"PORT" envDefault:"5000"`
	FrontendURL      string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	DatabaseURI      string        `env:"MONGODB_URI"`
	DatabaseName     string        `env:"MONGODB_DATABASE"`
	ConnectTimeout   time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	BodyLimitMB      int64         `env:"BODY_LIMIT_MB" envDefault:"50"`
	StaticDir        string        `env:"STATIC_DIR" envDefault:"."`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDir           string        `env:"LOG_DIR"`
	OneCheckInPerDay bool          `env:"ATTENDANCE_ONE_PER_DAY" envDefault:"false"`
	Timezone         string        `env:"ATTENDANCE_TIMEZONE" envDefault:"Local"`
}

// Load reads an optional .env file and then the process environment.
func Load() (App, error) {
	_ = godotenv.Load(".env")
	return parse(env.Options{})
}

func parse(opts env.Options) (App, error) {
	var cfg App
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return App{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseURI = strings.TrimSpace(cfg.DatabaseURI)
	if cfg.DatabaseURI == "" {
		return App{}, ErrMissingDatabaseURI
	}
	if cfg.BodyLimitMB <= 0 {
		cfg.BodyLimitMB = 50
	}
	return cfg, nil
}

// AllowedOrigins returns the CORS allow-list.
func (c App) AllowedOrigins() []string {
	return append([]string{c.FrontendURL}, fixedOrigins...)
}

// BodyLimitBytes returns the request body ceiling in bytes.
func (c App) BodyLimitBytes() int64 {
	return c.BodyLimitMB << 20
}

// IsProduction reports whether NODE_ENV names a production deployment.
func (c App) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Location resolves the time zone used to derive attendance day keys.
func (c App) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DatabaseIsLocal reports whether the connection string points at this host.
func (c App) DatabaseIsLocal() bool {
	return strings.Contains(c.DatabaseURI, "localhost") || strings.Contains(c.DatabaseURI, "127.0.0.1")
}
