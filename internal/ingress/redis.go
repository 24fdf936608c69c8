package ingress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a reliable list queue. Next moves an id atomically onto a
// processing list; Ack removes it from there and Nack moves it back. Ids left
// on the processing list by a crashed worker are requeued by Recover.
type RedisQueue struct {
	client     redis.UniversalClient
	pending    string
	processing string
	// blockFor bounds each BLMOVE so ctx is rechecked regularly.
	blockFor time.Duration
}

func NewRedisQueue(client redis.UniversalClient, name string) *RedisQueue {
	if name == "" {
		name = "ingress:orders"
	}
	return &RedisQueue{
		client:     client,
		pending:    name,
		processing: name + ":processing",
		blockFor:   time.Second,
	}
}

func (q *RedisQueue) Publish(ctx context.Context, orderID string) error {
	if err := validateID(orderID); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.pending, orderID).Err(); err != nil {
		return fmt.Errorf("ingress: publish %s: %w", orderID, err)
	}
	return nil
}

func (q *RedisQueue) Next(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.blockFor).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("ingress: next: %w", err)
		}
		return &redisDelivery{q: q, id: id}, nil
	}
}

// Recover moves every id stranded on the processing list back to the
// pending list. Call it once at startup, before any worker runs.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("ingress: recover: %w", err)
		}
		n++
	}
}

// Len reports how many ids are waiting and how many are in flight.
func (q *RedisQueue) Len(ctx context.Context) (pending, processing int64, err error) {
	pipe := q.client.Pipeline()
	p := pipe.LLen(ctx, q.pending)
	r := pipe.LLen(ctx, q.processing)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("ingress: len: %w", err)
	}
	return p.Val(), r.Val(), nil
}

type redisDelivery struct {
	q  *RedisQueue
	id string
}

func (d *redisDelivery) OrderID() string { return d.id }

func (d *redisDelivery) Ack(ctx context.Context) error {
	if err := d.q.client.LRem(ctx, d.q.processing, 1, d.id).Err(); err != nil {
		return fmt.Errorf("ingress: ack %s: %w", d.id, err)
	}
	return nil
}

func (d *redisDelivery) Nack(ctx context.Context) error {
	pipe := d.q.client.TxPipeline()
	pipe.LRem(ctx, d.q.processing, 1, d.id)
	pipe.LPush(ctx, d.q.pending, d.id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ingress: nack %s: %w", d.id, err)
	}
	return nil
}
