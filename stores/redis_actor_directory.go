package stores

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultExternalUsersKey is the redis set holding external user ids.
const DefaultExternalUsersKey = "guard:external_users"

// RedisActorDirectory classifies users by membership in a redis set.
type RedisActorDirectory struct {
	client *redis.Client
	key    string
}

func NewRedisActorDirectory(client *redis.Client, key string) *RedisActorDirectory {
	if key == "" {
		key = DefaultExternalUsersKey
	}
	return &RedisActorDirectory{client: client, key: key}
}

func (r *RedisActorDirectory) IsExternalUser(ctx context.Context, userID string) (bool, error) {
	return r.client.SIsMember(ctx, r.key, userID).Result()
}

func (r *RedisActorDirectory) MarkExternal(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]any, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	return r.client.SAdd(ctx, r.key, members...).Err()
}

func (r *RedisActorDirectory) MarkInternal(ctx context.Context, userID string) error {
	return r.client.SRem(ctx, r.key, userID).Err()
}

func (r *RedisActorDirectory) ListExternal(ctx context.Context) ([]string, error) {
	res, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}
