// Package ingress delivers "order created" notifications to the orchestrator
// with at-least-once semantics.
package ingress

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrClosed is returned by Next and Publish once a queue is closed.
var ErrClosed = errors.New("ingress: queue closed")

// Delivery is one order id handed out by a Source. Exactly one of Ack or
// Nack should be called.
type Delivery interface {
	OrderID() string
	// Ack drops the delivery for good.
	Ack(ctx context.Context) error
	// Nack hands the order id back for redelivery.
	Nack(ctx context.Context) error
}

type Source interface {
	// Next blocks until an order id is available or ctx is done.
	Next(ctx context.Context) (Delivery, error)
}

type Publisher interface {
	Publish(ctx context.Context, orderID string) error
}

func validateID(orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("ingress: empty order id")
	}
	return nil
}

// ChannelQueue is an in-process queue. Deliveries in flight are lost with
// the process; use RedisQueue when that matters.
//
// Nacked ids go to a separate redelivery list that Next drains first, so a
// nack never waits for room in the channel. The list holds at most one id
// per outstanding delivery.
type ChannelQueue struct {
	ch        chan string
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	redeliver []string
	wake      chan struct{}
}

func NewChannelQueue(capacity int) *ChannelQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelQueue{
		ch:   make(chan string, capacity),
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
}

// Publish blocks while the queue is full.
func (q *ChannelQueue) Publish(ctx context.Context, orderID string) error {
	if err := validateID(orderID); err != nil {
		return err
	}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- orderID:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChannelQueue) Next(ctx context.Context) (Delivery, error) {
	for {
		select {
		case <-q.done:
			return nil, ErrClosed
		default:
		}
		if id, ok := q.popRedelivery(); ok {
			return &channelDelivery{q: q, id: id}, nil
		}

		select {
		case id := <-q.ch:
			return &channelDelivery{q: q, id: id}, nil
		case <-q.wake:
		case <-q.done:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports how many order ids are waiting, redeliveries included.
func (q *ChannelQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.redeliver)
}

func (q *ChannelQueue) popRedelivery() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.redeliver) == 0 {
		return "", false
	}
	id := q.redeliver[0]
	q.redeliver = q.redeliver[1:]
	return id, true
}

func (q *ChannelQueue) requeue(id string) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	q.mu.Lock()
	q.redeliver = append(q.redeliver, id)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops Next and Publish. Waiting ids are discarded.
func (q *ChannelQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

type channelDelivery struct {
	q  *ChannelQueue
	id string
}

func (d *channelDelivery) OrderID() string { return d.id }

func (d *channelDelivery) Ack(context.Context) error { return nil }

// Nack never blocks, even when the channel is full.
func (d *channelDelivery) Nack(context.Context) error {
	return d.q.requeue(d.id)
}
