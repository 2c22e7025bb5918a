// internal/app/bootstrap/routes.go
package bootstrap

import (
	"fmt"
	"net/http"
	"time"

	healthfeature "github.com/dalemusser/mindpath/internal/app/features/health"
	responsesfeature "github.com/dalemusser/mindpath/internal/app/features/responses"
	sessionsfeature "github.com/dalemusser/mindpath/internal/app/features/sessions"
	userstore "github.com/dalemusser/mindpath/internal/app/store/users"
	"github.com/dalemusser/mindpath/internal/app/system/auth"
	"github.com/dalemusser/mindpath/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed, so the engines and registries in deps are ready.
//
// mindpath applies session middleware and mounts the JSON features:
// health, the participant session view, and the counselor/admin surface.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps.rt == nil || deps.rt.views == nil {
		return nil, fmt.Errorf("build handler: engines not started")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// LoadSessionUser fetches fresh user data on each request so role and
	// status changes take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(deps.MongoDatabase))

	loc, err := time.LoadLocation(appCfg.ExportTimezone)
	if err != nil {
		return nil, fmt.Errorf("export timezone: %w", err)
	}

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Participant session views
	sessionsHandler := sessionsfeature.NewHandler(deps.rt.views, logger)
	r.Mount("/programs/{program}/sessions/{index}", sessionsfeature.Routes(sessionsHandler, sessionMgr))

	// Counselor/admin submissions, responses, dispatch and export
	responsesHandler := responsesfeature.NewHandler(deps.rt.views, deps.rt.jobs, loc, logger)
	if appCfg.DispatchRatePerMin > 0 {
		responsesHandler.DispatchLimit = ratelimit.New(appCfg.DispatchRatePerMin, appCfg.DispatchRateBurst)
	}
	if deps.rt.audit != nil {
		responsesHandler.Audit = deps.rt.audit
	}
	r.Mount("/admin/programs/{program}/sessions/{index}", responsesfeature.Routes(responsesHandler, sessionMgr))

	return r, nil
}
