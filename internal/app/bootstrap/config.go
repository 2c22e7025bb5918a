// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/mindpath/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for mindpath.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, redis_addr, etc.
//   - Environment variables: MINDPATH_MONGO_URI, MINDPATH_REDIS_ADDR, etc.
//   - Command-line flags: --mongo_uri, --redis_addr, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "mindpath", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Draft storage
	{Name: "redis_addr", Default: "localhost:6379", Desc: "Redis address for autosaved drafts (blank disables drafts)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "draft_ttl", Default: "720h", Desc: "How long an autosaved draft is kept"},

	// Autosave and dispatch
	{Name: "autosave_quiet_period", Default: "1100ms", Desc: "Quiet period after the last edit before autosave runs"},
	{Name: "autosave_max_retries", Default: 2, Desc: "Autosave retries before the failure is logged and dropped"},
	{Name: "dispatch_concurrency", Default: 4, Desc: "Concurrent response writes per bulk dispatch"},
	{Name: "dispatch_job_retention", Default: "1h", Desc: "How long finished dispatch jobs remain pollable"},
	{Name: "dispatch_rate_per_minute", Default: 6, Desc: "Bulk dispatch starts allowed per counselor per minute (0 disables)"},
	{Name: "dispatch_rate_burst", Default: 3, Desc: "Bulk dispatch starts allowed back to back"},

	// Open views
	{Name: "view_idle_timeout", Default: "30m", Desc: "Close session views untouched for this long"},
	{Name: "view_sweep_interval", Default: "1m", Desc: "How often idle views are swept"},

	// Sessions
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "mindpath-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie lifetime"},

	// Audit logging settings
	{Name: "audit_log_assignment", Default: "all", Desc: "Participant submission logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Counselor/admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "export_timezone", Default: "Asia/Jakarta", Desc: "Time zone for CSV export timestamps"},
	{Name: "programs_dir", Default: "", Desc: "Directory of program YAML files overriding the built-in definitions"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, MINDPATH_* for app) and flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "MINDPATH", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),
		DraftTTL:      appValues.Duration("draft_ttl", 30*24*time.Hour),

		AutosaveQuietPeriod:  appValues.Duration("autosave_quiet_period", 1100*time.Millisecond),
		AutosaveMaxRetries:   appValues.Int("autosave_max_retries"),
		DispatchConcurrency:  appValues.Int("dispatch_concurrency"),
		DispatchJobRetention: appValues.Duration("dispatch_job_retention", time.Hour),
		DispatchRatePerMin:   appValues.Int("dispatch_rate_per_minute"),
		DispatchRateBurst:    appValues.Int("dispatch_rate_burst"),

		ViewIdleTimeout:   appValues.Duration("view_idle_timeout", 30*time.Minute),
		ViewSweepInterval: appValues.Duration("view_sweep_interval", time.Minute),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 24*time.Hour),

		AuditLogAssignment: appValues.String("audit_log_assignment"),
		AuditLogAdmin:      appValues.String("audit_log_admin"),

		ExportTimezone: appValues.String("export_timezone"),
		ProgramsDir:    appValues.String("programs_dir"),
	}

	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("operation timeouts overridden from environment", zap.Int("count", n))
	}

	return coreCfg, appCfg, nil
}

var auditModes = map[string]bool{"all": true, "db": true, "log": true, "off": true}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.AutosaveQuietPeriod <= 0 {
		return fmt.Errorf("autosave_quiet_period must be positive, got %s", appCfg.AutosaveQuietPeriod)
	}
	if appCfg.AutosaveMaxRetries < 0 {
		return fmt.Errorf("autosave_max_retries must not be negative, got %d", appCfg.AutosaveMaxRetries)
	}
	if appCfg.DispatchConcurrency <= 0 {
		return fmt.Errorf("dispatch_concurrency must be positive, got %d", appCfg.DispatchConcurrency)
	}
	if appCfg.DispatchRatePerMin < 0 {
		return fmt.Errorf("dispatch_rate_per_minute must not be negative, got %d", appCfg.DispatchRatePerMin)
	}
	if appCfg.ViewIdleTimeout <= 0 || appCfg.ViewSweepInterval <= 0 {
		return fmt.Errorf("view_idle_timeout and view_sweep_interval must be positive")
	}
	if appCfg.RedisAddr != "" && appCfg.DraftTTL <= 0 {
		return fmt.Errorf("draft_ttl must be positive when redis_addr is set")
	}
	if _, err := time.LoadLocation(appCfg.ExportTimezone); err != nil {
		return fmt.Errorf("invalid export_timezone %q: %w", appCfg.ExportTimezone, err)
	}
	for name, mode := range map[string]string{
		"audit_log_assignment": appCfg.AuditLogAssignment,
		"audit_log_admin":      appCfg.AuditLogAdmin,
	} {
		if !auditModes[mode] {
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", name, mode)
		}
	}
	return nil
}
