package mongodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/pkg/cache"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newTestRepo requires MongoDB on localhost:27017 and Redis on localhost:6379.
func newTestRepo(t *testing.T) (*chatRoomRepository, *cache.RedisCache) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongodb not available: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("redis not available: %v", err)
	}

	db := client.Database(fmt.Sprintf("ridechat_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
		_ = rdb.Close()
	})

	redisCache := cache.NewRedisCacheFromClient(rdb)
	repo := NewChatRoomRepository(db, redisCache, time.Minute).(*chatRoomRepository)
	return repo, redisCache
}

func newRideID() string {
	return fmt.Sprintf("ride-%d", time.Now().UnixNano())
}

func TestChatRoomRepository_ClosedRoomRejectsMembershipChanges(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	rideID := newRideID()

	require.NoError(t, repo.CreateRoom(ctx, &models.ChatRoom{RideID: rideID, DriverID: "driver-1", PassengerIDs: []string{"pass-1"}}))
	require.NoError(t, repo.UpdateRoom(ctx, rideID, map[string]interface{}{"is_closed": true}))

	assert.ErrorIs(t, repo.AddPassenger(ctx, rideID, "pass-2"), interfaces.ErrClosed)
	assert.ErrorIs(t, repo.RemovePassenger(ctx, rideID, "pass-1"), interfaces.ErrClosed)
	assert.ErrorIs(t, repo.AddPassenger(ctx, "ride-missing", "pass-2"), interfaces.ErrNotFound)

	room, err := repo.FindRoomByRide(ctx, rideID)
	require.NoError(t, err)
	assert.True(t, room.IsClosed)
	assert.Equal(t, []string{"pass-1"}, room.PassengerIDs)
}

func TestChatRoomRepository_StaleLoadIsNotCached(t *testing.T) {
	repo, redisCache := newTestRepo(t)
	ctx := context.Background()
	rideID := newRideID()

	require.NoError(t, repo.CreateRoom(ctx, &models.ChatRoom{RideID: rideID, DriverID: "driver-1", PassengerIDs: []string{"pass-1"}}))
	require.NoError(t, redisCache.Invalidate(ctx, roomCacheKey(rideID)))

	// A loader reads the generation and the open room, then the passenger is
	// removed before the loader writes its copy back.
	gen, ok := repo.cacheGeneration(ctx, rideID)
	require.True(t, ok)
	stale := &models.ChatRoom{RideID: rideID, DriverID: "driver-1", PassengerIDs: []string{"pass-1"}}
	require.NoError(t, repo.RemovePassenger(ctx, rideID, "pass-1"))
	repo.cacheRoomIfGeneration(ctx, stale, gen)

	room, err := repo.FindRoomByRide(ctx, rideID)
	require.NoError(t, err)
	assert.False(t, room.IsMember("pass-1"))
}

func TestChatRoomRepository_CounterKeepsCache(t *testing.T) {
	repo, redisCache := newTestRepo(t)
	ctx := context.Background()
	rideID := newRideID()

	require.NoError(t, repo.CreateRoom(ctx, &models.ChatRoom{RideID: rideID, DriverID: "driver-1"}))
	_, err := repo.FindRoomByRide(ctx, rideID)
	require.NoError(t, err)

	require.NoError(t, repo.IncrementMessageCount(ctx, rideID))

	exists, err := redisCache.Exists(ctx, roomCacheKey(rideID))
	require.NoError(t, err)
	assert.True(t, exists)
}
