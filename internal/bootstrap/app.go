package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"talentpool-backend/internal/access"
	"talentpool-backend/internal/events"
	"talentpool-backend/internal/outbox"
	"talentpool-backend/internal/pools"
	"talentpool-backend/internal/queue"
	"talentpool-backend/internal/settlement"
	"talentpool-backend/internal/shared/config"
	"talentpool-backend/internal/shared/server"
	"talentpool-backend/internal/shared/storage/db"
	"talentpool-backend/internal/shared/telemetry"
	"talentpool-backend/internal/skills"
)

// App holds shared dependencies of the API process.
type App struct {
	Config    config.Config
	Router    *gin.Engine
	DB        *sql.DB
	Store     pools.Store
	Engine    *pools.Engine
	Policy    *access.Policy
	Skills    skills.Registry
	Tokens    skills.Minter
	Publisher events.Publisher
	Payouts   queue.Client
	Outbox    *outbox.Dispatcher
	Redis     *redis.Client
}

// Build prepares every dependency and the router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg}

	sqlDB, err := buildDB(ctx, cfg, db.DefaultServerOptions())
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB

	store, err := buildStore(ctx, cfg, sqlDB)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	app.Skills, app.Tokens = buildSkills(cfg, sqlDB)
	p := cfg.Policy
	app.Policy = access.NewPolicy(p.Admins, p.Operators, p.OpenParticipation).WithGrantSource(store)
	app.Engine = pools.NewEngine(store, skillResolver{registry: app.Skills}, app.Policy, pools.Options{
		Bounds: pools.Bounds{
			MinSkillLevel: p.MinSkillLevel,
			MaxSkillLevel: p.MaxSkillLevel,
			MaxFeeBps:     p.MaxFeeBps,
		},
		Penalty: pools.LinearPenalty{MaxBps: p.PenaltyMaxBps},
	})

	publisher, err := buildPublisher(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Publisher = publisher

	if app.Redis, err = BuildRedis(cfg); err != nil {
		app.Close()
		return nil, err
	}
	payouts, err := buildPayouts(ctx, cfg, sqlDB, app.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Payouts = payouts
	app.Outbox = &outbox.Dispatcher{Source: store, Events: publisher, Payouts: payouts}

	var tokensHandler *skills.Handler
	if app.Tokens != nil {
		tokensHandler = skills.NewHandler(app.Tokens, app.Policy)
	}
	app.Router = server.NewRouter(server.RouterDeps{
		Config:        cfg,
		PoolHandler:   pools.NewHandler(app.Engine),
		SkillsHandler: tokensHandler,
		Authz:         app.Policy,
	})
	return app, nil
}

// Close releases external connections.
func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			telemetry.Warn("bootstrap.publisher_close_failed", map[string]any{"error": err.Error()})
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

// BuildDB connects to Postgres when configured. Dev-like environments fall
// back to in-memory state (nil DB) when the database is absent or unreachable.
func BuildDB(ctx context.Context, cfg config.Config, defaults db.Options) (*sql.DB, error) {
	return buildDB(ctx, cfg, defaults)
}

func buildDB(ctx context.Context, cfg config.Config, defaults db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_state", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, errors.New("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(defaults))
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_state", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config, sqlDB *sql.DB) (pools.Store, error) {
	initial := pools.Settings{
		PlatformFeeBps: cfg.Policy.PlatformFeeBps,
		FeeCollector:   cfg.Policy.FeeCollector,
		MinimumStake:   cfg.Policy.MinimumStake,
	}
	if sqlDB == nil {
		return pools.NewMemoryStore(initial), nil
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store := pools.NewPGStore(sqlDB)
	if err := store.Seed(ctx, initial); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return store, nil
}

func buildSkills(cfg config.Config, sqlDB *sql.DB) (skills.Registry, skills.Minter) {
	switch cfg.Policy.SkillRegistry {
	case config.RegistryPlaceholder:
		return skills.PlaceholderRegistry{
			Category: cfg.Policy.PlaceholderSkill,
			Level:    cfg.Policy.PlaceholderLevel,
		}, nil
	case config.RegistryPostgres:
		if sqlDB != nil {
			reg := &skills.PGRegistry{DB: sqlDB}
			return reg, reg
		}
		telemetry.Warn("bootstrap.skills_fallback", map[string]any{"reason": "no database for postgres registry"})
	}
	reg := skills.NewMemoryRegistry()
	return reg, reg
}

func buildPublisher(cfg config.Config) (events.Publisher, error) {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		telemetry.Info("bootstrap.events", map[string]any{"publisher": "log"})
		return events.LogPublisher{}, nil
	}
	pub, err := events.NewRabbitPublisher(cfg.RabbitMQURL, events.DefaultExchange)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.events", map[string]any{"publisher": "log", "error": err.Error()})
			return events.LogPublisher{}, nil
		}
		return nil, err
	}
	return pub, nil
}

// BuildRedis returns a client when REDIS_URL is set.
func BuildRedis(cfg config.Config) (*redis.Client, error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// BuildProcessor assembles the settlement side: Redis or in-memory locks held
// for at most lockTTL, Postgres or in-memory ledger.
func BuildProcessor(sqlDB *sql.DB, rdb *redis.Client, lockTTL time.Duration) *settlement.Processor {
	var locks settlement.Locker = settlement.NewMemoryLocker(lockTTL)
	if rdb != nil {
		locks = settlement.NewRedisLocker(rdb, lockTTL)
	}
	var ledger settlement.Ledger = settlement.NewMemoryLedger()
	if sqlDB != nil {
		ledger = &settlement.PGLedger{DB: sqlDB}
	}
	return &settlement.Processor{Locks: locks, Ledger: ledger}
}

func buildPayouts(ctx context.Context, cfg config.Config, sqlDB *sql.DB, rdb *redis.Client) (queue.Client, error) {
	if strings.TrimSpace(cfg.PayoutQueueURL) == "" {
		telemetry.Info("bootstrap.payouts", map[string]any{"transport": "direct"})
		return settlement.DirectClient{Processor: BuildProcessor(sqlDB, rdb, 0)}, nil
	}
	return queue.NewSQSClient(ctx, cfg.PayoutQueueURL, cfg.AWSRegion)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// skillResolver adapts a skills.Registry to the engine's resolver contract.
type skillResolver struct {
	registry skills.Registry
}

func (r skillResolver) ResolveSkills(ctx context.Context, candidate string, tokenIDs []int64) ([]pools.Skill, error) {
	resolved, err := r.registry.Resolve(ctx, candidate, tokenIDs)
	if err != nil {
		if errors.Is(err, skills.ErrNotFound) || errors.Is(err, skills.ErrNotOwner) {
			return nil, fmt.Errorf("%w: %v", pools.ErrSkillRejected, err)
		}
		return nil, err
	}
	out := make([]pools.Skill, len(resolved))
	for i, s := range resolved {
		out[i] = pools.Skill{Category: s.Category, Level: s.Level}
	}
	return out, nil
}
