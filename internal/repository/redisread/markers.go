// Package redisread keeps per-session read markers in Redis hashes.
package redisread

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/Xausdorf/outing-chat/internal/usecase"
)

// markMax raises the stored marker only if the new ID is greater.
var markMax = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
local next = tonumber(ARGV[2])
if next > current then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

type MarkerRepository struct {
	client redis.UniversalClient
}

func NewMarkerRepository(client redis.UniversalClient) (*MarkerRepository, error) {
	if client == nil {
		return nil, errors.New("redisread: client must not be nil")
	}
	return &MarkerRepository{client: client}, nil
}

func markersKey(sessionID string) string {
	return fmt.Sprintf("outing:read:%s", sessionID)
}

func (r *MarkerRepository) MarkReadUpTo(ctx context.Context, sessionID, userID string, messageID int64) error {
	err := markMax.Run(ctx, r.client, []string{markersKey(sessionID)}, userID, strconv.FormatInt(messageID, 10)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return usecase.Unavailable("mark read", err)
	}
	return nil
}

// Connect parses a redis:// URI and returns a client.
func Connect(uri string) (*redis.Client, error) {
	options, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("could not parse redis uri: %w", err)
	}
	return redis.NewClient(options), nil
}
