package stores

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisMembershipStore keeps user->roles and user->groups in redis sets
// (keys: {prefix}roles:{userID}, {prefix}groups:{userID}).
type RedisMembershipStore struct {
	client *redis.Client
	keyFmt string
}

func NewRedisMembershipStore(client *redis.Client, prefix string) *RedisMembershipStore {
	if prefix == "" {
		prefix = "guard:"
	}
	return &RedisMembershipStore{client: client, keyFmt: prefix + "%ss:%s"}
}

func (r *RedisMembershipStore) key(kind, userID string) string {
	return fmt.Sprintf(r.keyFmt, kind, userID)
}

func (r *RedisMembershipStore) AssignRole(ctx context.Context, userID, role string) error {
	return r.client.SAdd(ctx, r.key(memberKindRole, userID), role).Err()
}

func (r *RedisMembershipStore) RevokeRole(ctx context.Context, userID, role string) error {
	return r.client.SRem(ctx, r.key(memberKindRole, userID), role).Err()
}

func (r *RedisMembershipStore) AddToGroup(ctx context.Context, userID, group string) error {
	return r.client.SAdd(ctx, r.key(memberKindGroup, userID), group).Err()
}

func (r *RedisMembershipStore) RemoveFromGroup(ctx context.Context, userID, group string) error {
	return r.client.SRem(ctx, r.key(memberKindGroup, userID), group).Err()
}

func (r *RedisMembershipStore) ListRoles(ctx context.Context, userID string) ([]string, error) {
	return r.members(ctx, r.key(memberKindRole, userID))
}

func (r *RedisMembershipStore) ListGroups(ctx context.Context, userID string) ([]string, error) {
	return r.members(ctx, r.key(memberKindGroup, userID))
}

func (r *RedisMembershipStore) members(ctx context.Context, key string) ([]string, error) {
	res, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}
