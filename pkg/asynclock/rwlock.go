// Package asynclock implements a cooperative, cancelable reader/writer
// lock. Unlike sync.RWMutex, AcquireRead and AcquireWrite accept a
// context.Context: a cancelled context fails the acquisition without
// taking the lock, which is required wherever the fabric's suspension
// contract (spec section 5) applies to a lock wait.
//
// Readers are admitted concurrently while no writer holds or is
// waiting for the lock. A waiting writer blocks new readers from being
// admitted so that continuous reader load cannot starve it, then
// excludes all readers and other writers once it is its turn.
package asynclock

import (
	"context"
	"fmt"
	"sync"

	"github.com/gardenfabric/core/pkg/ferrors"
)

// RWLock is a single-node, non-reentrant, cancelable reader/writer lock.
type RWLock struct {
	mu            sync.Mutex
	activeReaders int
	writerActive  bool
	waitingWriters int
	readerCond    *sync.Cond
	writerCond    *sync.Cond
}

// New creates a ready-to-use RWLock.
func New() *RWLock {
	l := &RWLock{}
	l.readerCond = sync.NewCond(&l.mu)
	l.writerCond = sync.NewCond(&l.mu)
	return l
}

// AcquireRead blocks until a read lock is obtained or ctx is done.
// On success it returns a release function that must be called exactly
// once. On cancellation it returns an error and takes no lock.
func (l *RWLock) AcquireRead(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("asynclock: %w: %s", ferrors.ErrCancelled, err)
	}
	done := make(chan struct{})
	var acquired bool
	go func() {
		l.mu.Lock()
		for l.writerActive || l.waitingWriters > 0 {
			l.readerCond.Wait()
		}
		l.activeReaders++
		acquired = true
		l.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return func() { l.releaseRead() }, nil
	case <-ctx.Done():
		// The goroutine above may still acquire the lock after we give
		// up waiting; wait for it and release immediately so the lock
		// is never left held without an owner the caller knows about.
		go func() {
			<-done
			if acquired {
				l.releaseRead()
			}
		}()
		return nil, fmt.Errorf("asynclock: %w: %s", ferrors.ErrCancelled, ctx.Err())
	}
}

func (l *RWLock) releaseRead() {
	l.mu.Lock()
	l.activeReaders--
	if l.activeReaders == 0 {
		l.writerCond.Signal()
	}
	l.mu.Unlock()
}

// AcquireWrite blocks until an exclusive write lock is obtained or ctx
// is done. On success it returns a release function that must be
// called exactly once.
func (l *RWLock) AcquireWrite(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("asynclock: %w: %s", ferrors.ErrCancelled, err)
	}
	done := make(chan struct{})
	var acquired bool
	go func() {
		l.mu.Lock()
		l.waitingWriters++
		for l.writerActive || l.activeReaders > 0 {
			l.writerCond.Wait()
		}
		l.waitingWriters--
		l.writerActive = true
		acquired = true
		l.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return func() { l.releaseWrite() }, nil
	case <-ctx.Done():
		go func() {
			<-done
			if acquired {
				l.releaseWrite()
			}
		}()
		return nil, fmt.Errorf("asynclock: %w: %s", ferrors.ErrCancelled, ctx.Err())
	}
}

func (l *RWLock) releaseWrite() {
	l.mu.Lock()
	l.writerActive = false
	l.mu.Unlock()
	// Wake a waiting writer first to preserve the handoff that prevents
	// writer starvation; if none is waiting, release all readers.
	l.writerCond.Signal()
	l.readerCond.Broadcast()
}
