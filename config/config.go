// Package config loads the server configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Server   Server
	Database Database
	Log      Log
	Leave    Leave
	CORS     CORS `toml:"cors"`

	Bootstrap Bootstrap
}

type Server struct {
	Addr            string
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type Database struct {
	// Path of the SQLite file, ":memory:" for a throwaway database.
	Path string
}

type Log struct {
	Level string
	// File receives JSON logs through lumberjack rotation. Empty = console only.
	File string
}

type Leave struct {
	DefaultAllotment decimal.Decimal `toml:"default_allotment"`
	PoliciesFile     string          `toml:"policies_file"`
	// OpenYearInterval is how often the current year's balances are opened.
	// Zero disables the job.
	OpenYearInterval Duration `toml:"open_year_interval"`
}

type CORS struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Bootstrap seeds the directory with one system admin on startup, so an empty
// database can be administered. Empty AdminID disables seeding.
type Bootstrap struct {
	AdminID   string `toml:"admin_id"`
	AdminName string `toml:"admin_name"`
}

// Duration decodes TOML strings such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{15 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Database: Database{Path: "./timekeeper.db"},
		Log:      Log{Level: "info"},
		Leave:    Leave{DefaultAllotment: decimal.NewFromInt(20), OpenYearInterval: Duration{time.Hour}},
		CORS:     CORS{AllowedOrigins: []string{"*"}},

		Bootstrap: Bootstrap{AdminID: "admin", AdminName: "Administrator"},
	}
}

// Load decodes the TOML file at path over Default(). An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %s", path, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if !c.Leave.DefaultAllotment.IsPositive() {
		return errors.New("leave.default_allotment must be positive")
	}
	if c.Leave.OpenYearInterval.Duration < 0 {
		return errors.New("leave.open_year_interval must not be negative")
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	return nil
}

// ZapLevel parses Log.Level.
func (l Log) ZapLevel() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
