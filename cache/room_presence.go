package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/shannn1/echolab-final/db"

	"github.com/redis/go-redis/v9"
)

const (
	roomPresenceSet = "room:%s:online_users" // Set: user ids currently connected
	roomPresenceKey = "room:%s:presence:%d"  // String: per-user heartbeat key
	presenceTTL     = 60 * time.Second
)

// RoomPresence tracks which users are currently connected to a room. The
// heartbeat keys expire on their own, so a crashed client disappears from the
// count within presenceTTL even if the unregister path never ran.
type RoomPresence struct {
	client *redis.Client
}

// NewRoomPresence creates a presence tracker bound to the global Redis client.
func NewRoomPresence() *RoomPresence {
	return &RoomPresence{client: db.RedisClient}
}

// Touch marks a user as online in a room and refreshes their heartbeat.
func (c *RoomPresence) Touch(ctx context.Context, roomID string, userID int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	setKey := fmt.Sprintf(roomPresenceSet, roomID)
	hbKey := fmt.Sprintf(roomPresenceKey, roomID, userID)

	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, setKey, userID)
	pipe.Expire(ctx, setKey, presenceTTL*2)
	pipe.Set(ctx, hbKey, time.Now().UnixMilli(), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Remove clears a user's presence in a room.
func (c *RoomPresence) Remove(ctx context.Context, roomID string, userID int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	setKey := fmt.Sprintf(roomPresenceSet, roomID)
	hbKey := fmt.Sprintf(roomPresenceKey, roomID, userID)

	pipe := c.client.Pipeline()
	pipe.SRem(ctx, setKey, userID)
	pipe.Del(ctx, hbKey)
	_, err := pipe.Exec(ctx)
	return err
}

// OnlineCount returns how many users in the room still have a live heartbeat.
// Stale set members (expired heartbeats) are pruned as a side effect.
func (c *RoomPresence) OnlineCount(ctx context.Context, roomID string) (int64, error) {
	if c.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}

	setKey := fmt.Sprintf(roomPresenceSet, roomID)
	members, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}

	var count int64
	for _, member := range members {
		hbKey := fmt.Sprintf("room:%s:presence:%s", roomID, member)
		exists, err := c.client.Exists(ctx, hbKey).Result()
		if err != nil {
			continue
		}
		if exists > 0 {
			count++
		} else {
			c.client.SRem(ctx, setKey, member)
		}
	}
	return count, nil
}
