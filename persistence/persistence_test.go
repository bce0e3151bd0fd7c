package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aegisframework/aegis/types"
)

func sampleRecord(id string) *types.ResourceRecord {
	return &types.ResourceRecord{
		ID:           id,
		Name:         "sample",
		Owner:        "tester",
		Capabilities: []string{"weather", "location:São Paulo"},
		Endpoint:     "http://localhost:9000",
		APISchema:    types.Document{"openapi": "3.0"},
		Manifest:     types.Document{"vendor": "acme"},
		QoS: types.QoSProfile{
			SuccessCount: 7,
			FailureCount: 3,
			AvgLatency:   80 * time.Millisecond,
		},
		Active:       true,
		UsageCount:   10,
		RegisteredAt: time.Now().Truncate(time.Second),
	}
}

// registryStoreSuite exercises the RegistryStore contract shared by every
// backend.
func registryStoreSuite(t *testing.T, store RegistryStore) {
	ctx := context.Background()

	rec := sampleRecord("res-1")
	require.NoError(t, store.SaveRecord(ctx, rec))

	// Upsert: saving again replaces, not duplicates.
	rec.UsageCount = 11
	require.NoError(t, store.SaveRecord(ctx, rec))
	require.NoError(t, store.SaveRecord(ctx, sampleRecord("res-2")))

	records, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]*types.ResourceRecord{}
	for _, r := range records {
		byID[r.ID] = r
	}
	got := byID["res-1"]
	require.NotNil(t, got)
	assert.Equal(t, int64(11), got.UsageCount)
	assert.Equal(t, []string{"weather", "location:São Paulo"}, got.Capabilities)
	assert.Equal(t, int64(7), got.QoS.SuccessCount)
	assert.Equal(t, 80*time.Millisecond, got.QoS.AvgLatency)
	assert.Equal(t, "acme", got.Manifest["vendor"])

	require.NoError(t, store.DeleteRecord(ctx, "res-1"))
	require.NoError(t, store.DeleteRecord(ctx, "res-1")) // idempotent

	records, err = store.LoadRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "res-2", records[0].ID)
}

func TestMemoryStore_RegistryContract(t *testing.T) {
	registryStoreSuite(t, NewMemoryStore())
}

func TestGormRegistryStore_Contract(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store, err := NewGormRegistryStore(db, zaptest.NewLogger(t))
	require.NoError(t, err)

	registryStoreSuite(t, store)
}

func TestMemoryStore_SaveIsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := sampleRecord("res-1")
	require.NoError(t, store.SaveRecord(ctx, rec))
	rec.Capabilities[0] = "mutated"

	records, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, "weather", records[0].Capabilities[0])
}

func TestMemoryStore_ClosedRejectsWrites(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	err := store.SaveRecord(context.Background(), sampleRecord("res-1"))
	assert.True(t, types.IsCode(err, types.ErrStoreClosed))
}

func sessionStoreSuite(t *testing.T, store SessionStore) {
	ctx := context.Background()

	sess := types.NewSession("sess-1")
	sess.SetPreference("lang", "pt")
	sess.AppendConversation("user", "what's the weather in São Paulo")
	require.NoError(t, store.SaveSession(ctx, sess.Snapshot()))

	got, err := store.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)
	v, ok := got.Preference("lang")
	assert.True(t, ok)
	assert.Equal(t, "pt", v)
	require.Len(t, got.ConversationHistory, 1)
	assert.Equal(t, "user", got.ConversationHistory[0].Role)

	_, err = store.LoadSession(ctx, "missing")
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	require.NoError(t, store.DeleteSession(ctx, "sess-1"))
	_, err = store.LoadSession(ctx, "sess-1")
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestMemoryStore_SessionContract(t *testing.T) {
	sessionStoreSuite(t, NewMemoryStore())
}

func TestRedisSessionStore_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := NewRedisSessionStore(client, "aegis:", zaptest.NewLogger(t))
	sessionStoreSuite(t, store)
}

func TestRedisSessionStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisSessionStore(client, "aegis:", zaptest.NewLogger(t))

	sess := types.NewSession("sess-1")
	require.NoError(t, store.SaveSession(context.Background(), sess.Snapshot()))

	assert.True(t, mr.Exists("aegis:session:sess-1"))
}
