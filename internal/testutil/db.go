package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoURI  = "mongodb://localhost:27017"
	defaultRedisAddr = "localhost:6379"
)

var seq atomic.Int64

// TestContext returns a context bounded for a single test step.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// UniqueKey returns prefix with a suffix unique to this test process, so
// tests sharing one Redis server do not see each other's keys.
func UniqueKey(prefix string) string {
	return fmt.Sprintf("test:%s:%d:%d", prefix, os.Getpid(), seq.Add(1))
}

// SetupTestDB connects to MINDPATH_TEST_MONGO_URI (default localhost) and
// returns a fresh database that is dropped when the test ends. The test is
// skipped when no server answers.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("MINDPATH_TEST_MONGO_URI"))
	if uri == "" {
		uri = defaultMongoURI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("mongo unavailable: %v", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongo unavailable: %v", err)
	}

	name := fmt.Sprintf("mindpath_test_%d_%d", os.Getpid(), seq.Add(1))
	db := client.Database(name)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

// SetupTestRedis connects to MINDPATH_TEST_REDIS_ADDR (default localhost)
// and skips the test when no server answers. Tests should use UniqueKey.
func SetupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("MINDPATH_TEST_REDIS_ADDR"))
	if addr == "" {
		addr = defaultRedisAddr
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 2 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis unavailable: %v", err)
	}

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}
