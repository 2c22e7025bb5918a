// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig covers ports, TLS, logging, CORS and body limits.
// Everything below is specific to mindpath: backends, autosave and
// dispatch tuning, session cookies, and export formatting.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Redis holds autosaved drafts. Blank RedisAddr disables drafts.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DraftTTL      time.Duration

	// Autosave and bulk dispatch tuning
	AutosaveQuietPeriod  time.Duration // debounce window after the last edit
	AutosaveMaxRetries   int
	DispatchConcurrency  int           // parallel response writes per dispatch job
	DispatchJobRetention time.Duration // how long finished jobs stay pollable
	DispatchRatePerMin   int           // dispatch starts per counselor per minute; 0 disables
	DispatchRateBurst    int

	// Open-view eviction
	ViewIdleTimeout   time.Duration
	ViewSweepInterval time.Duration

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: mindpath-session)
	SessionDomain string // Cookie domain (blank means current host)
	SessionMaxAge time.Duration

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAssignment string
	AuditLogAdmin      string

	ExportTimezone string // IANA zone used for CSV timestamps
	ProgramsDir    string // optional directory overriding the embedded program definitions
}
