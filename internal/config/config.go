// Package config loads service configuration: defaults, then an optional
// YAML file, then a .env file, then INTERFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INTERFLOW_"

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Discord    DiscordConfig    `yaml:"discord"`
	Editor     EditorConfig     `yaml:"editor"`
	Ephemeral  EphemeralConfig  `yaml:"ephemeral"`
	Relational RelationalConfig `yaml:"relational"`
	Actors     ActorsConfig     `yaml:"actors"`
	Flows      FlowsConfig      `yaml:"flows"`
	Deferred   DeferredConfig   `yaml:"deferred"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Address      string   `yaml:"address"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	// ExposeActors serves the actor HTTP surface on ActorsAddress. The
	// routes are unauthenticated; keep ActorsAddress off public networks.
	ExposeActors  bool   `yaml:"expose_actors"`
	ActorsAddress string `yaml:"actors_address"`
}

type DiscordConfig struct {
	ApplicationID string  `yaml:"application_id"`
	PublicKey     string  `yaml:"public_key"`
	Token         string  `yaml:"token"`
	RequestsPerS  float64 `yaml:"requests_per_second"`
	Burst         int     `yaml:"burst"`
}

type EditorConfig struct {
	Origin  string   `yaml:"origin"`
	Secret  string   `yaml:"secret"`
	LinkTTL Duration `yaml:"link_ttl"`
}

type EphemeralConfig struct {
	Backend       string `yaml:"backend"` // memory | redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
	SweepCron     string `yaml:"sweep_cron"`
}

type RelationalConfig struct {
	Driver string `yaml:"driver"` // sqlite3 | postgres
	DSN    string `yaml:"dsn"`
}

type ActorsConfig struct {
	StoragePath string   `yaml:"storage_path"`
	Shards      int      `yaml:"shards"`
	IdleTimeout Duration `yaml:"idle_timeout"`
	MailboxSize int      `yaml:"mailbox_size"`
	// RemoteURL, when set, uses a remote actor host instead of the
	// in-process registry.
	RemoteURL string `yaml:"remote_url"`
}

type FlowsConfig struct {
	MaxActions        int      `yaml:"max_actions"`
	PremiumMaxActions int      `yaml:"premium_max_actions"`
	MaxWait           Duration `yaml:"max_wait"`
}

type DeferredConfig struct {
	Workers       int      `yaml:"workers"`
	QueueSize     int      `yaml:"queue_size"`
	TaskTimeout   Duration `yaml:"task_timeout"`
	ShutdownGrace Duration `yaml:"shutdown_grace"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Duration accepts "90s"-style strings or plain numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:       ":8080",
			MaxBodyBytes:  1 << 20,
			ReadTimeout:   Duration(10 * time.Second),
			WriteTimeout:  Duration(10 * time.Second),
			ExposeActors:  false,
			ActorsAddress: "127.0.0.1:8081",
		},
		Discord: DiscordConfig{RequestsPerS: 40, Burst: 10},
		Editor:  EditorConfig{LinkTTL: Duration(24 * time.Hour)},
		Ephemeral: EphemeralConfig{
			Backend:   "memory",
			KeyPrefix: "interflow:",
			SweepCron: "* * * * *",
		},
		Relational: RelationalConfig{Driver: "sqlite3", DSN: "interflow.db"},
		Actors: ActorsConfig{
			StoragePath: "actors",
			Shards:      32,
			IdleTimeout: Duration(10 * time.Minute),
			MailboxSize: 64,
		},
		Flows: FlowsConfig{
			MaxActions:        5,
			PremiumMaxActions: 20,
			MaxWait:           Duration(60 * time.Second),
		},
		Deferred: DeferredConfig{
			Workers:       8,
			QueueSize:     256,
			TaskTimeout:   Duration(2 * time.Minute),
			ShutdownGrace: Duration(15 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the effective configuration. path may be empty. A missing
// .env file is not an error; a missing config file named explicitly is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
