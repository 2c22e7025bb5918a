// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/mindpath/internal/app/dispatchjobs"
	"github.com/dalemusser/mindpath/internal/app/engine"
	auditstore "github.com/dalemusser/mindpath/internal/app/store/audit"
	draftstore "github.com/dalemusser/mindpath/internal/app/store/drafts"
	enrollmentstore "github.com/dalemusser/mindpath/internal/app/store/enrollments"
	progressstore "github.com/dalemusser/mindpath/internal/app/store/progress"
	submissionstore "github.com/dalemusser/mindpath/internal/app/store/submissions"
	userstore "github.com/dalemusser/mindpath/internal/app/store/users"
	"github.com/dalemusser/mindpath/internal/app/system/auditlog"
	"github.com/dalemusser/mindpath/internal/app/system/workers"
	"github.com/dalemusser/mindpath/internal/app/views"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup builds one engine per program over the Mongo and Redis stores,
// the open-view and dispatch-job registries, and starts the idle view
// cleanup worker.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	rt := deps.rt
	db := deps.MongoDatabase

	if auditsToDB(appCfg.AuditLogAssignment, appCfg.AuditLogAdmin) {
		rt.audit = auditstore.New(db)
	}
	audit := auditlog.New(rt.audit, logger, auditlog.Config{
		Assignment: appCfg.AuditLogAssignment,
		Admin:      appCfg.AuditLogAdmin,
	})

	enrollments := enrollmentstore.New(db)
	profiles := userstore.New(db)

	// Engines are built before the view registry exists; OnChange reaches
	// it through rt once Startup has finished.
	notify := func(program string, session int) {
		if rt.views != nil {
			rt.views.Notify(program, session)
		}
	}

	var engines []*engine.Engine
	for _, p := range deps.Programs.All() {
		d := engine.Deps{
			Progress:    progressstore.New(db, p.Collections.Progress, string(p.Kind)),
			Submissions: submissionstore.New(db, p.Collections.Submissions, string(p.Kind)),
			Enrollments: enrollments,
			Profiles:    profiles,
		}
		if deps.Redis != nil {
			d.Drafts = draftstore.New(deps.Redis, appCfg.DraftTTL)
		}
		engines = append(engines, engine.New(p, d, engine.Options{
			Logger:              logger,
			Audit:               audit,
			QuietPeriod:         appCfg.AutosaveQuietPeriod,
			AutosaveRetries:     appCfg.AutosaveMaxRetries,
			DispatchConcurrency: appCfg.DispatchConcurrency,
			OnChange:            notify,
		}))
		logger.Info("program engine ready",
			zap.String("program", string(p.Kind)),
			zap.Int("sessions", len(p.Sessions)))
	}

	rt.catalog = engine.NewCatalog(engines...)
	rt.views = views.New(rt.catalog, logger)
	rt.jobs = dispatchjobs.New(logger)
	rt.cleanup = workers.NewViewCleanup(rt.views, rt.jobs, logger,
		appCfg.ViewSweepInterval, appCfg.ViewIdleTimeout, appCfg.DispatchJobRetention)
	rt.cleanup.Start()
	return nil
}

// auditsToDB reports whether any audit mode writes to MongoDB.
func auditsToDB(modes ...string) bool {
	for _, m := range modes {
		if m == "all" || m == "db" {
			return true
		}
	}
	return false
}
