package helpers

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/nimasrn/sms-widget-gateway/pkg/pg"
	"github.com/nimasrn/sms-widget-gateway/pkg/redis"
)

// SetupTestDB returns an in-memory sqlite database with the given models migrated.
// The pool is pinned to a single connection so every query sees the same memory database.
func SetupTestDB(t *testing.T, models ...any) *pg.DB {
	t.Helper()

	db, err := pg.Open(sqlite.Open(":memory:"), false)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models...))

	return pg.New(nil, db)
}

// SetupTestRedis starts a miniredis server and registers an adapter under a unique name.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	connName := fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}
