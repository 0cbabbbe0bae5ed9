package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/aggregate"
	"github.com/lox/recoverytrack/internal/history"
	"github.com/lox/recoverytrack/internal/identity"
	"github.com/lox/recoverytrack/internal/logging"
	"github.com/lox/recoverytrack/internal/normalize"
	"github.com/lox/recoverytrack/internal/store"
)

type Globals struct {
	DB          string        `help:"Path to SQLite database." default:"data/recoverytrack.db" env:"RECOVERYTRACK_DB"`
	Timezone    string        `help:"IANA timezone used to group records by day." default:"Local" env:"RECOVERYTRACK_TIMEZONE"`
	LogLevel    string        `help:"Log level." default:"info" enum:"debug,info,warn,error" env:"RECOVERYTRACK_LOG_LEVEL"`
	LogFormat   string        `help:"Log format." default:"json" enum:"json,console" env:"RECOVERYTRACK_LOG_FORMAT"`
	JWTSecret   string        `name:"jwt-secret" help:"HMAC secret for session tokens." env:"RECOVERYTRACK_JWT_SECRET"`
	TokenTTL    time.Duration `help:"Session token lifetime." default:"24h" env:"RECOVERYTRACK_TOKEN_TTL"`
	RedisAddr   string        `help:"Redis address for token revocation and insight caching (in-memory when empty)." env:"RECOVERYTRACK_REDIS_ADDR"`
	Statistic   string        `help:"Daily statistic." default:"median" enum:"mean,median" env:"RECOVERYTRACK_STATISTIC"`
	WindowDays  int           `help:"Days of history to aggregate." default:"7" env:"RECOVERYTRACK_WINDOW_DAYS"`
	ZeroFill    bool          `help:"Treat unreadable numeric fields as 0 instead of missing." env:"RECOVERYTRACK_ZERO_FILL"`
	LegacyEmpty bool          `help:"Report a user without records as an error." env:"RECOVERYTRACK_LEGACY_EMPTY"`
}

// app holds what every command needs once flags are parsed.
type app struct {
	log   *zap.Logger
	store *store.Store
	loc   *time.Location
	kv    identity.KV
	redis *redis.Client
}

func (g *Globals) open(ctx context.Context) (*app, error) {
	logger, err := logging.New(g.LogLevel, g.LogFormat)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		logger.Warn("could not load timezone, using UTC", zap.String("timezone", g.Timezone), zap.Error(err))
		loc = time.UTC
	}

	db, err := store.Open(g.DB)
	if err != nil {
		return nil, err
	}
	st := store.New(db, logger)
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &app{log: logger, store: st, loc: loc}
	if g.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: g.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.kv = identity.NewRedisKV(a.redis)
	} else {
		a.kv = identity.NewMemoryKV()
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.store.Close()
	a.log.Sync()
}

func (g *Globals) auth(a *app) (*identity.Service, error) {
	tokens, err := identity.NewTokens(g.JWTSecret, g.TokenTTL, a.kv)
	if err != nil {
		return nil, err
	}
	return identity.NewService(a.store, tokens, a.log), nil
}

func (g *Globals) fallback() normalize.Fallback {
	if g.ZeroFill {
		return normalize.FallbackZero
	}
	return normalize.FallbackNull
}

func (g *Globals) policy() history.NotFoundPolicy {
	if g.LegacyEmpty {
		return history.EmptyIsError
	}
	return history.EmptyIsNotError
}

// loadHistory runs the pipeline once for the account registered as email.
func (g *Globals) loadHistory(ctx context.Context, a *app, email, statName string) (*history.Loader, history.State, error) {
	u, err := a.store.GetUserByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		return nil, history.State{}, fmt.Errorf("find user %q: %w", email, err)
	}
	if statName == "" {
		statName = g.Statistic
	}
	stat, err := aggregate.ByName(statName)
	if err != nil {
		return nil, history.State{}, err
	}

	agg := aggregate.New(stat, a.loc, aggregate.WithWindowDays(g.WindowDays))
	l := history.New(
		identity.NewStatic(identity.Identity{UserID: u.ID, Email: u.Email}),
		a.store, agg, a.log,
		history.WithPolicy(g.policy()),
		history.WithFallback(g.fallback()),
	)
	defer l.Dispose()

	state := l.Load(ctx)
	if err := state.Err(); err != nil {
		return l, state, fmt.Errorf("load history: %w", err)
	}
	return l, state, nil
}
