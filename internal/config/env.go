package config

import (
	"fmt"
	"strconv"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from INTERFLOW_* variables.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	a := applier{lookup: lookup}

	a.stringVar("SERVER_ADDRESS", &cfg.Server.Address)
	a.int64Var("SERVER_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)
	a.boolVar("SERVER_EXPOSE_ACTORS", &cfg.Server.ExposeActors)
	a.stringVar("SERVER_ACTORS_ADDRESS", &cfg.Server.ActorsAddress)

	a.stringVar("DISCORD_APPLICATION_ID", &cfg.Discord.ApplicationID)
	a.stringVar("DISCORD_PUBLIC_KEY", &cfg.Discord.PublicKey)
	a.stringVar("DISCORD_TOKEN", &cfg.Discord.Token)
	a.floatVar("DISCORD_REQUESTS_PER_SECOND", &cfg.Discord.RequestsPerS)

	a.stringVar("EDITOR_ORIGIN", &cfg.Editor.Origin)
	a.stringVar("EDITOR_SECRET", &cfg.Editor.Secret)
	a.durationVar("EDITOR_LINK_TTL", &cfg.Editor.LinkTTL)

	a.stringVar("EPHEMERAL_BACKEND", &cfg.Ephemeral.Backend)
	a.stringVar("EPHEMERAL_REDIS_ADDR", &cfg.Ephemeral.RedisAddr)
	a.stringVar("EPHEMERAL_REDIS_PASSWORD", &cfg.Ephemeral.RedisPassword)
	a.intVar("EPHEMERAL_REDIS_DB", &cfg.Ephemeral.RedisDB)
	a.stringVar("EPHEMERAL_SWEEP_CRON", &cfg.Ephemeral.SweepCron)

	a.stringVar("RELATIONAL_DRIVER", &cfg.Relational.Driver)
	a.stringVar("RELATIONAL_DSN", &cfg.Relational.DSN)

	a.stringVar("ACTORS_STORAGE_PATH", &cfg.Actors.StoragePath)
	a.intVar("ACTORS_SHARDS", &cfg.Actors.Shards)
	a.durationVar("ACTORS_IDLE_TIMEOUT", &cfg.Actors.IdleTimeout)
	a.stringVar("ACTORS_REMOTE_URL", &cfg.Actors.RemoteURL)

	a.intVar("FLOWS_MAX_ACTIONS", &cfg.Flows.MaxActions)
	a.intVar("FLOWS_PREMIUM_MAX_ACTIONS", &cfg.Flows.PremiumMaxActions)
	a.durationVar("FLOWS_MAX_WAIT", &cfg.Flows.MaxWait)

	a.intVar("DEFERRED_WORKERS", &cfg.Deferred.Workers)
	a.intVar("DEFERRED_QUEUE_SIZE", &cfg.Deferred.QueueSize)
	a.durationVar("DEFERRED_SHUTDOWN_GRACE", &cfg.Deferred.ShutdownGrace)

	a.stringVar("LOG_LEVEL", &cfg.Log.Level)
	a.stringVar("LOG_FORMAT", &cfg.Log.Format)

	return a.err
}

// applier records the first parse error and skips the rest.
type applier struct {
	lookup LookupFunc
	err    error
}

func (a *applier) get(name string) (string, bool) {
	if a.err != nil {
		return "", false
	}
	v, ok := a.lookup(EnvPrefix + name)
	return v, ok && v != ""
}

func (a *applier) fail(name, raw string, err error) {
	a.err = fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, raw, err)
}

func (a *applier) stringVar(name string, dst *string) {
	if v, ok := a.get(name); ok {
		*dst = v
	}
}

func (a *applier) intVar(name string, dst *int) {
	if v, ok := a.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			a.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (a *applier) int64Var(name string, dst *int64) {
	if v, ok := a.get(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			a.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (a *applier) floatVar(name string, dst *float64) {
	if v, ok := a.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			a.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (a *applier) boolVar(name string, dst *bool) {
	if v, ok := a.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			a.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (a *applier) durationVar(name string, dst *Duration) {
	if v, ok := a.get(name); ok {
		d, err := parseDuration(v)
		if err != nil {
			a.fail(name, v, err)
			return
		}
		*dst = Duration(d)
	}
}
