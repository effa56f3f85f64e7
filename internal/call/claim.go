package call

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claimer decides which replica answers a call when notifications reach several of them.
type Claimer interface {
	Claim(ctx context.Context, callID string) (bool, error)
}

// RedisClaimer grants the first SETNX on a call id; the key expires after TTL.
type RedisClaimer struct {
	rdb    *redis.Client
	owner  string
	prefix string
	ttl    time.Duration
}

func NewRedisClaimer(rdb *redis.Client, owner string, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	return &RedisClaimer{rdb: rdb, owner: owner, prefix: "callbot:claim:", ttl: ttl}
}

func (c *RedisClaimer) Claim(ctx context.Context, callID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.prefix+callID, c.owner, c.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// a redelivery to the replica that already holds the claim is still ours
	owner, err := c.rdb.Get(ctx, c.prefix+callID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == c.owner, nil
}
