package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/pkg/cache"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const ChatRoomsCollection = "chat_rooms"

type chatRoomRepository struct {
	collection *mongo.Collection
	cache      *cache.RedisCache
	cacheTTL   time.Duration
}

// NewChatRoomRepository builds the room repository. cache may be nil.
func NewChatRoomRepository(db *mongo.Database, cache *cache.RedisCache, cacheTTL time.Duration) interfaces.ChatRoomRepository {
	return &chatRoomRepository{
		collection: db.Collection(ChatRoomsCollection),
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

func (r *chatRoomRepository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	now := time.Now()
	room.ID = primitive.NewObjectID()
	room.CreatedAt = now
	room.UpdatedAt = now
	if room.PassengerIDs == nil {
		room.PassengerIDs = []string{}
	}

	if _, err := r.collection.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("chat room for ride %s: %w", room.RideID, interfaces.ErrDuplicate)
		}
		return fmt.Errorf("failed to create chat room: %w", err)
	}

	r.cacheRoom(ctx, room)

	return nil
}

func (r *chatRoomRepository) FindRoomByRide(ctx context.Context, rideID string) (*models.ChatRoom, error) {
	if room := r.getRoomFromCache(ctx, rideID); room != nil {
		return room, nil
	}

	// Read the generation first so a write landing during the load keeps
	// this copy out of the cache.
	gen, cacheable := r.cacheGeneration(ctx, rideID)

	var room models.ChatRoom
	err := r.collection.FindOne(ctx, bson.M{"ride_id": rideID}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("chat room for ride %s: %w", rideID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat room: %w", err)
	}

	if cacheable {
		r.cacheRoomIfGeneration(ctx, &room, gen)
	}

	return &room, nil
}

func (r *chatRoomRepository) UpdateRoom(ctx context.Context, rideID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	return r.update(ctx, rideID, bson.M{"$set": updates})
}

func (r *chatRoomRepository) AddPassenger(ctx context.Context, rideID, passengerID string) error {
	return r.updateOpen(ctx, rideID, bson.M{
		"$addToSet": bson.M{"passenger_ids": passengerID},
		"$set":      bson.M{"updated_at": time.Now()},
	})
}

func (r *chatRoomRepository) RemovePassenger(ctx context.Context, rideID, passengerID string) error {
	return r.updateOpen(ctx, rideID, bson.M{
		"$pull": bson.M{"passenger_ids": passengerID},
		"$set":  bson.M{"updated_at": time.Now()},
	})
}

// IncrementMessageCount leaves the cached room alone. The count is display
// only and refreshes when the entry expires or the room changes.
func (r *chatRoomRepository) IncrementMessageCount(ctx context.Context, rideID string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"ride_id": rideID}, bson.M{"$inc": bson.M{"message_count": 1}})
	if err != nil {
		return fmt.Errorf("failed to update chat room: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("chat room for ride %s: %w", rideID, interfaces.ErrNotFound)
	}
	return nil
}

func (r *chatRoomRepository) update(ctx context.Context, rideID string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"ride_id": rideID}, update)
	if err != nil {
		return fmt.Errorf("failed to update chat room: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("chat room for ride %s: %w", rideID, interfaces.ErrNotFound)
	}

	r.invalidateRoomCache(ctx, rideID)

	return nil
}

// updateOpen applies update only while the room is open. A miss is resolved
// to ErrClosed or ErrNotFound with a second lookup.
func (r *chatRoomRepository) updateOpen(ctx context.Context, rideID string, update bson.M) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"ride_id": rideID, "is_closed": false}, update)
	if err != nil {
		return fmt.Errorf("failed to update chat room: %w", err)
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"ride_id": rideID})
		if err != nil {
			return fmt.Errorf("failed to update chat room: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("chat room for ride %s: %w", rideID, interfaces.ErrNotFound)
		}
		// Drop any copy that still shows the room open.
		r.invalidateRoomCache(ctx, rideID)
		return fmt.Errorf("chat room for ride %s: %w", rideID, interfaces.ErrClosed)
	}

	r.invalidateRoomCache(ctx, rideID)

	return nil
}

// Cache operations
func roomCacheKey(rideID string) string {
	return fmt.Sprintf("chat_room:ride:%s", rideID)
}

func (r *chatRoomRepository) cacheRoom(ctx context.Context, room *models.ChatRoom) {
	if gen, ok := r.cacheGeneration(ctx, room.RideID); ok {
		r.cacheRoomIfGeneration(ctx, room, gen)
	}
}

func (r *chatRoomRepository) cacheGeneration(ctx context.Context, rideID string) (string, bool) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return "", false
	}
	gen, err := r.cache.Generation(ctx, roomCacheKey(rideID))
	if err != nil {
		return "", false
	}
	return gen, true
}

func (r *chatRoomRepository) cacheRoomIfGeneration(ctx context.Context, room *models.ChatRoom, gen string) {
	_, _ = r.cache.SetIfGeneration(ctx, roomCacheKey(room.RideID), gen, room, r.cacheTTL)
}

func (r *chatRoomRepository) getRoomFromCache(ctx context.Context, rideID string) *models.ChatRoom {
	if r.cache == nil {
		return nil
	}

	var room models.ChatRoom
	if err := r.cache.Get(ctx, roomCacheKey(rideID), &room); err != nil {
		return nil
	}

	return &room
}

func (r *chatRoomRepository) invalidateRoomCache(ctx context.Context, rideID string) {
	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, roomCacheKey(rideID))
	}
}
