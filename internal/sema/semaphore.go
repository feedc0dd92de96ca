// Package sema implements semaphores.
package sema

import (
	"context"

	"github.com/exchangesets/fsstransfer/internal/errors"
)

// A Semaphore limits access to a restricted resource, e.g. the number of
// downloads running at the same time.
type Semaphore struct {
	ch chan struct{}
}

// New returns a new semaphore with capacity n.
func New(n uint) (Semaphore, error) {
	if n == 0 {
		return Semaphore{}, errors.New("capacity must be a positive number")
	}
	return Semaphore{
		ch: make(chan struct{}, n),
	}, nil
}

// GetToken blocks until a token is available or ctx is cancelled. The token
// must be returned with ReleaseToken if and only if GetToken returned nil.
func (s Semaphore) GetToken(ctx context.Context) error {
	// prefer the cancellation if both cases are ready
	if ctx.Err() != nil {
		return ctx.Err()
	}

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseToken returns a token.
func (s Semaphore) ReleaseToken() { <-s.ch }

// Cap returns the capacity of the semaphore.
func (s Semaphore) Cap() int { return cap(s.ch) }

// InUse returns the number of tokens currently handed out.
func (s Semaphore) InUse() int { return len(s.ch) }
