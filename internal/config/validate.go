package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/adhocore/gronx"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Address == "" {
		add("server.address is empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes must be positive")
	}
	if c.Server.ExposeActors {
		switch {
		case c.Actors.RemoteURL != "":
			add("server.expose_actors needs the in-process registry; unset actors.remote_url")
		case c.Server.ActorsAddress == "":
			add("server.actors_address is required when server.expose_actors is set")
		case c.Server.ActorsAddress == c.Server.Address:
			add("server.actors_address must differ from server.address")
		}
	}

	if c.Discord.PublicKey != "" {
		if b, err := hex.DecodeString(c.Discord.PublicKey); err != nil || len(b) != 32 {
			add("discord.public_key must be 32 hex-encoded bytes")
		}
	}

	if c.Editor.Origin != "" {
		if u, err := url.Parse(c.Editor.Origin); err != nil || u.Scheme == "" || u.Host == "" {
			add("editor.origin %q is not an absolute URL", c.Editor.Origin)
		}
		if len(c.Editor.Secret) < 32 {
			add("editor.secret must be at least 32 bytes when editor.origin is set")
		}
	}

	switch c.Ephemeral.Backend {
	case "memory":
		if !gronx.IsValid(c.Ephemeral.SweepCron) {
			add("ephemeral.sweep_cron %q is not a valid cron expression", c.Ephemeral.SweepCron)
		}
	case "redis":
		if c.Ephemeral.RedisAddr == "" {
			add("ephemeral.redis_addr is required for the redis backend")
		}
	default:
		add("ephemeral.backend %q must be memory or redis", c.Ephemeral.Backend)
	}

	switch c.Relational.Driver {
	case "sqlite3", "postgres":
	default:
		add("relational.driver %q must be sqlite3 or postgres", c.Relational.Driver)
	}
	if c.Relational.DSN == "" {
		add("relational.dsn is empty")
	}

	if c.Actors.RemoteURL == "" && c.Actors.StoragePath == "" {
		add("actors.storage_path is empty")
	}
	if c.Actors.Shards < 1 {
		add("actors.shards must be at least 1")
	}

	if c.Flows.MaxActions < 1 {
		add("flows.max_actions must be at least 1")
	}
	if c.Flows.PremiumMaxActions < c.Flows.MaxActions {
		add("flows.premium_max_actions must not be below flows.max_actions")
	}
	if c.Flows.MaxWait < 0 {
		add("flows.max_wait must not be negative")
	}

	if c.Deferred.Workers < 1 || c.Deferred.QueueSize < 1 {
		add("deferred.workers and deferred.queue_size must be at least 1")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format %q must be text or json", c.Log.Format)
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return lvl, nil
}
