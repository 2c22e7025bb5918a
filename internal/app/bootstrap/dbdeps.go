// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/mindpath/internal/app/dispatchjobs"
	"github.com/dalemusser/mindpath/internal/app/engine"
	auditstore "github.com/dalemusser/mindpath/internal/app/store/audit"
	"github.com/dalemusser/mindpath/internal/app/system/workers"
	"github.com/dalemusser/mindpath/internal/app/views"
	"github.com/dalemusser/mindpath/internal/domain/programs"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
// Redis is nil when drafts are disabled.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Redis         *goredis.Client
	Programs      *programs.Registry

	// rt is allocated by ConnectDB and filled in by Startup; WAFFLE passes
	// DBDeps by value so later hooks reach the same runtime through it.
	rt *runtime
}

// runtime holds the long-lived engine objects shared by BuildHandler and
// Shutdown.
type runtime struct {
	catalog *engine.Catalog
	views   *views.Registry
	jobs    *dispatchjobs.Registry
	cleanup *workers.ViewCleanup
	audit   *auditstore.Store // nil when no audit mode writes to MongoDB
}
