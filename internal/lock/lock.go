// Package lock provides keyed mutual exclusion so that at most one
// orchestration run or callback resolution touches a given order at a time.
package lock

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrLockBusy is returned when the lock could not be acquired within the
	// configured attempts.
	ErrLockBusy = errors.New("lock: busy")
	// ErrEmptyKey is returned when an empty key is provided.
	ErrEmptyKey = errors.New("lock: key cannot be empty")
	// ErrNilFn is returned when a nil function is passed to WithLock.
	ErrNilFn = errors.New("lock: function is nil")
)

// Locker runs fn while holding the lock named key. fn's error is returned
// unchanged (possibly wrapped).
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// OrderKey is the lock key shared by everything that mutates an order.
func OrderKey(orderID string) string {
	return "lock:order:" + orderID
}

func validate(key string, fn func(context.Context) error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if fn == nil {
		return ErrNilFn
	}
	return nil
}
