package callback

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long a Pending record survives in Redis.
const DefaultRetention = 7 * 24 * time.Hour

var registerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'order_id', ARGV[1], 'vendor', ARGV[2], 'transaction_id', ARGV[3], 'registered_at', ARGV[4])
if tonumber(ARGV[5]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
end
return 1
`)

var completeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
return redis.call('HSETNX', KEYS[1], 'completed_at', ARGV[1])
`)

// RedisRegistry stores each Pending record as a hash. Completion is a single
// HSETNX so concurrent resolvers on different replicas cannot both win.
type RedisRegistry struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisRegistry(client redis.UniversalClient, prefix string, retention time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "callback:pending"
	}
	if retention < 0 {
		retention = 0
	}
	return &RedisRegistry{client: client, prefix: prefix, retention: retention}
}

func (r *RedisRegistry) key(orderID, vendor string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, vendor, orderID)
}

func (r *RedisRegistry) Register(ctx context.Context, p Pending) error {
	err := registerScript.Run(ctx, r.client, []string{r.key(p.OrderID, p.Vendor)},
		p.OrderID, p.Vendor, p.TransactionID, p.RegisteredAt.UTC().Format(time.RFC3339Nano), r.retention.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("callback: register %s/%s: %w", p.Vendor, p.OrderID, err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, orderID, vendor string) (Pending, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.key(orderID, vendor)).Result()
	if err != nil {
		return Pending{}, false, fmt.Errorf("callback: get %s/%s: %w", vendor, orderID, err)
	}
	if len(fields) == 0 {
		return Pending{}, false, nil
	}

	p := Pending{
		OrderID:       fields["order_id"],
		Vendor:        fields["vendor"],
		TransactionID: fields["transaction_id"],
	}
	if p.RegisteredAt, err = time.Parse(time.RFC3339Nano, fields["registered_at"]); err != nil {
		return Pending{}, false, fmt.Errorf("callback: parse registered_at for %s/%s: %w", vendor, orderID, err)
	}
	if v, ok := fields["completed_at"]; ok {
		p.Completed = true
		if p.CompletedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return Pending{}, false, fmt.Errorf("callback: parse completed_at for %s/%s: %w", vendor, orderID, err)
		}
	}
	return p, true, nil
}

func (r *RedisRegistry) Complete(ctx context.Context, orderID, vendor string, at time.Time) (bool, error) {
	won, err := completeScript.Run(ctx, r.client, []string{r.key(orderID, vendor)},
		at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return false, fmt.Errorf("callback: complete %s/%s: %w", vendor, orderID, err)
	}
	return won == 1, nil
}

func (r *RedisRegistry) Reopen(ctx context.Context, orderID, vendor string) error {
	if err := r.client.HDel(ctx, r.key(orderID, vendor), "completed_at").Err(); err != nil {
		return fmt.Errorf("callback: reopen %s/%s: %w", vendor, orderID, err)
	}
	return nil
}
