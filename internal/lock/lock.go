// Package lock provides the mutual exclusion that keeps pipeline cycles
// from overlapping, within one process or across replicas.
package lock

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNotHeld is returned by a Release whose lock was already lost or released.
var ErrNotHeld = errors.New("lock not held")

// Release gives a lock back.
type Release func(ctx context.Context) error

// Locker grants a lock without blocking. ok is false when another holder
// owns it.
type Locker interface {
	TryLock(ctx context.Context) (release Release, ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	held atomic.Bool
}

// NewLocal creates an unheld Local lock.
func NewLocal() *Local {
	return &Local{}
}

// TryLock implements Locker.
func (l *Local) TryLock(context.Context) (Release, bool, error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, false, nil
	}

	var released atomic.Bool
	return func(context.Context) error {
		if !released.CompareAndSwap(false, true) {
			return ErrNotHeld
		}
		l.held.Store(false)
		return nil
	}, true, nil
}

var _ Locker = (*Local)(nil)
