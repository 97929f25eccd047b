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

	"talentpool-backend/internal/shared/telemetry"
)

// Skill registry modes.
const (
	RegistryMemory      = "memory"
	RegistryPlaceholder = "placeholder"
	RegistryPostgres    = "postgres"
)

// Config holds application configuration.
type Config struct {
	Port                string
	Env                 string
	DatabaseURL         string
	CORSAllowOrigin     []string
	RabbitMQURL         string
	PayoutQueueURL      string
	AWSRegion           string
	RedisURL            string
	OutboxFlushInterval time.Duration
	ExpirySweepInterval time.Duration
	Policy              Policy
}

// Policy is the engine policy. It may come from a YAML file named by
// POOL_POLICY_FILE; environment variables override file values.
type Policy struct {
	PlatformFeeBps    int64    `yaml:"platform_fee_bps"`
	MaxFeeBps         int64    `yaml:"max_fee_bps"`
	FeeCollector      string   `yaml:"fee_collector"`
	MinimumStake      int64    `yaml:"minimum_stake"`
	MinSkillLevel     int      `yaml:"min_skill_level"`
	MaxSkillLevel     int      `yaml:"max_skill_level"`
	PenaltyMaxBps     int64    `yaml:"penalty_max_bps"`
	SkillRegistry     string   `yaml:"skill_registry"`
	PlaceholderSkill  string   `yaml:"placeholder_skill"`
	PlaceholderLevel  int      `yaml:"placeholder_level"`
	Admins            []string `yaml:"admins"`
	Operators         []string `yaml:"operators"`
	OpenParticipation bool     `yaml:"open_participation"`
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		PlatformFeeBps:    250,
		MaxFeeBps:         10000,
		MinSkillLevel:     1,
		MaxSkillLevel:     100,
		PenaltyMaxBps:     10000,
		SkillRegistry:     RegistryMemory,
		PlaceholderSkill:  "general",
		PlaceholderLevel:  5,
		OpenParticipation: true,
	}
}

// Load reads configuration from env files, the optional policy file, and
// environment variables, in increasing order of precedence.
func Load() (Config, error) {
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": env})
	}

	policy := DefaultPolicy()
	if path := strings.TrimSpace(os.Getenv("POOL_POLICY_FILE")); path != "" {
		loaded, err := LoadPolicyFile(path, policy)
		if err != nil {
			return Config{}, err
		}
		policy = loaded
	}
	applyPolicyEnv(&policy)
	if err := policy.Validate(); err != nil {
		return Config{}, err
	}

	return Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 env,
		DatabaseURL:         dbURL,
		CORSAllowOrigin:     splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		RabbitMQURL:         os.Getenv("RABBITMQ_URL"),
		PayoutQueueURL:      os.Getenv("PAYOUT_SQS_QUEUE_URL"),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		RedisURL:            os.Getenv("REDIS_URL"),
		OutboxFlushInterval: envDuration("OUTBOX_FLUSH_INTERVAL", 2*time.Second),
		ExpirySweepInterval: envDuration("EXPIRY_SWEEP_INTERVAL", time.Minute),
		Policy:              policy,
	}, nil
}

// LoadPolicyFile overlays the YAML file at path onto base.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	policy := base
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return policy, nil
}

// Validate rejects policies the engine cannot run with.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxFeeBps <= 0 || p.MaxFeeBps > 10000 {
		errs = append(errs, errors.New("max_fee_bps must be within 1..10000"))
	}
	if p.PlatformFeeBps < 0 || p.PlatformFeeBps > p.MaxFeeBps {
		errs = append(errs, errors.New("platform_fee_bps must be within 0..max_fee_bps"))
	}
	if p.MinimumStake < 0 {
		errs = append(errs, errors.New("minimum_stake must not be negative"))
	}
	if p.MinSkillLevel <= 0 || p.MaxSkillLevel < p.MinSkillLevel {
		errs = append(errs, errors.New("skill level bounds are invalid"))
	}
	if p.PenaltyMaxBps < 0 || p.PenaltyMaxBps > 10000 {
		errs = append(errs, errors.New("penalty_max_bps must be within 0..10000"))
	}
	switch p.SkillRegistry {
	case RegistryMemory, RegistryPlaceholder, RegistryPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown skill_registry %q", p.SkillRegistry))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid policy: %w", errors.Join(errs...))
	}
	return nil
}

func applyPolicyEnv(p *Policy) {
	p.PlatformFeeBps = envInt64("PLATFORM_FEE_BPS", p.PlatformFeeBps)
	p.MinimumStake = envInt64("MINIMUM_STAKE", p.MinimumStake)
	p.PenaltyMaxBps = envInt64("PENALTY_MAX_BPS", p.PenaltyMaxBps)
	p.FeeCollector = getEnv("FEE_COLLECTOR", p.FeeCollector)
	p.SkillRegistry = strings.ToLower(getEnv("SKILL_REGISTRY", p.SkillRegistry))
	p.PlaceholderSkill = getEnv("PLACEHOLDER_SKILL", p.PlaceholderSkill)
	p.PlaceholderLevel = int(envInt64("PLACEHOLDER_LEVEL", int64(p.PlaceholderLevel)))
	if raw := os.Getenv("ADMIN_IDS"); raw != "" {
		p.Admins = splitAndTrim(raw)
	}
	if raw := os.Getenv("OPERATOR_IDS"); raw != "" {
		p.Operators = splitAndTrim(raw)
	}
	if raw := os.Getenv("OPEN_PARTICIPATION"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			p.OpenParticipation = v
		}
	}
}

// loadEnvFiles loads the given files if they exist. Existing environment
// variables are never overwritten.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			telemetry.Warn("config.env_file_invalid", map[string]any{"path": path, "error": err.Error()})
		}
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		telemetry.Warn("config.env.invalid", map[string]any{"key": key, "value": raw})
		return def
	}
	return val
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		telemetry.Warn("config.env.invalid", map[string]any{"key": key, "value": raw})
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}
