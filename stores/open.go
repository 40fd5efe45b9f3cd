package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/oarkflow/guard"
	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"
)

// Backends holds the collaborators opened from a guard.Config.
type Backends struct {
	Cache       guard.Cache
	Audit       guard.AuditStore
	Actors      guard.ActorClassifier
	Memberships guard.MembershipStore

	sqlite  map[string]*squealx.DB
	redis   map[string]*redis.Client
	closers []func() error
}

// Open builds every backend cfg names. Backends sharing a sqlite DSN or a
// redis address share one connection.
func Open(ctx context.Context, cfg *guard.Config) (*Backends, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backends{sqlite: make(map[string]*squealx.DB), redis: make(map[string]*redis.Client)}
	if err := b.openCache(ctx, cfg.Cache); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openAudit(cfg.Audit); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openActors(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openMemberships(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// NewEngine opens the backends, builds an engine from cfg and seeds it.
func NewEngine(ctx context.Context, cfg *guard.Config, opts ...guard.EngineOption) (*guard.Engine, *Backends, error) {
	b, err := Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cfgOpts, err := cfg.EngineOptions()
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	if b.Memberships != nil {
		cfgOpts = append(cfgOpts, guard.WithMembershipStore(b.Memberships))
	}
	engine, err := guard.NewEngine(ctx, b.Cache, b.Actors, b.Audit, append(cfgOpts, opts...)...)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		engine.Close()
		b.Close()
		return nil, nil, err
	}
	return engine, b, nil
}

// Close releases connections in reverse open order.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backends) openCache(ctx context.Context, cfg guard.CacheConfig) error {
	switch cfg.Backend {
	case "", guard.BackendMemory:
		b.Cache = guard.NewMemoryCache()
	case guard.BackendRistretto:
		rc, err := NewRistrettoCache(cfg.NumCounters, cfg.MaxCost, cfg.BufferItems, cfg.Prefix)
		if err != nil {
			return fmt.Errorf("ristretto cache: %w", err)
		}
		b.closers = append(b.closers, rc.Close)
		b.Cache = rc
	case guard.BackendRedis:
		client, err := b.redisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		b.Cache = NewRedisCache(client, cfg.Prefix)
	case guard.BackendSQLite:
		db, err := b.sqliteDB(cfg.SQLiteDSN)
		if err != nil {
			return err
		}
		b.Cache = NewSQLCache(db)
	default:
		return fmt.Errorf("%w: unknown cache backend %q", guard.ErrInvalidConfig, cfg.Backend)
	}
	return nil
}

func (b *Backends) openAudit(cfg guard.AuditConfig) error {
	switch cfg.Backend {
	case guard.BackendNone:
	case "", guard.BackendMemory:
		b.Audit = guard.NewMemoryAuditStore()
	case guard.BackendSQLite:
		db, err := b.sqliteDB(cfg.SQLiteDSN)
		if err != nil {
			return err
		}
		store, err := NewSQLAuditStore(db)
		if err != nil {
			return err
		}
		b.Audit = store
	default:
		return fmt.Errorf("%w: unknown audit backend %q", guard.ErrInvalidConfig, cfg.Backend)
	}
	return nil
}

func (b *Backends) openActors(ctx context.Context, cfg *guard.Config) error {
	switch cfg.Actors.Backend {
	case "", guard.BackendMemory:
		b.Actors = NewMemoryActorDirectory(cfg.Actors.External...)
	case guard.BackendRedis:
		addr := cfg.Actors.RedisAddr
		if addr == "" {
			addr = cfg.Cache.RedisAddr
		}
		client, err := b.redisClient(ctx, addr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		dir := NewRedisActorDirectory(client, cfg.Actors.RedisSetKey)
		if err := dir.MarkExternal(ctx, cfg.Actors.External...); err != nil {
			return fmt.Errorf("seed external users: %w", err)
		}
		b.Actors = dir
	default:
		return fmt.Errorf("%w: unknown actors backend %q", guard.ErrInvalidConfig, cfg.Actors.Backend)
	}
	return nil
}

type membershipWriter interface {
	guard.MembershipStore
	AssignRole(ctx context.Context, userID, role string) error
	AddToGroup(ctx context.Context, userID, group string) error
}

func (b *Backends) openMemberships(ctx context.Context, cfg *guard.Config) error {
	var store membershipWriter
	switch cfg.Memberships.Backend {
	case "", guard.BackendNone:
		if len(cfg.Memberships.Users) == 0 {
			return nil
		}
		store = NewMemoryMembershipStore()
	case guard.BackendMemory:
		store = NewMemoryMembershipStore()
	case guard.BackendRedis:
		addr := cfg.Memberships.RedisAddr
		if addr == "" {
			addr = cfg.Cache.RedisAddr
		}
		client, err := b.redisClient(ctx, addr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		store = NewRedisMembershipStore(client, cfg.Memberships.Prefix)
	case guard.BackendSQLite:
		db, err := b.sqliteDB(cfg.Memberships.SQLiteDSN)
		if err != nil {
			return err
		}
		store = NewSQLMembershipStore(db)
	default:
		return fmt.Errorf("%w: unknown memberships backend %q", guard.ErrInvalidConfig, cfg.Memberships.Backend)
	}
	for user, m := range cfg.Memberships.Users {
		for _, role := range m.Roles {
			if err := store.AssignRole(ctx, user, role); err != nil {
				return fmt.Errorf("seed role %s for %s: %w", role, user, err)
			}
		}
		for _, group := range m.Groups {
			if err := store.AddToGroup(ctx, user, group); err != nil {
				return fmt.Errorf("seed group %s for %s: %w", group, user, err)
			}
		}
	}
	b.Memberships = store
	return nil
}

func (b *Backends) sqliteDB(dsn string) (*squealx.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	if db, ok := b.sqlite[dsn]; ok {
		return db, nil
	}
	db, sqlDB, err := OpenSQLite(dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	b.sqlite[dsn] = db
	b.closers = append(b.closers, sqlDB.Close)
	return db, nil
}

func (b *Backends) redisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	key := fmt.Sprintf("%s/%d", addr, db)
	if c, ok := b.redis[key]; ok {
		return c, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	b.redis[key] = client
	b.closers = append(b.closers, client.Close)
	return client, nil
}
