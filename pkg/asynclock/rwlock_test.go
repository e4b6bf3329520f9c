package asynclock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardenfabric/core/pkg/asynclock"
)

func TestConcurrentReadersAdmitted(t *testing.T) {
	l := asynclock.New()
	ctx := context.Background()

	release1, err := l.AcquireRead(ctx)
	require.NoError(t, err)
	release2, err := l.AcquireRead(ctx)
	require.NoError(t, err)
	release1()
	release2()
}

func TestWriterExcludesReaders(t *testing.T) {
	l := asynclock.New()
	ctx := context.Background()

	releaseW, err := l.AcquireWrite(ctx)
	require.NoError(t, err)

	readerDone := make(chan struct{})
	go func() {
		release, err := l.AcquireRead(ctx)
		require.NoError(t, err)
		release()
		close(readerDone)
	}()

	select {
	case <-readerDone:
		t.Fatal("reader should not be admitted while writer holds the lock")
	case <-time.After(50 * time.Millisecond):
	}
	releaseW()
	<-readerDone
}

func TestAcquireReadFailsOnCancelledContext(t *testing.T) {
	l := asynclock.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.AcquireRead(ctx)
	assert.Error(t, err)
}

func TestWriterNotStarvedByContinuousReaders(t *testing.T) {
	l := asynclock.New()
	ctx := context.Background()

	var stop int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atomic.LoadInt32(&stop) == 0 {
				release, err := l.AcquireRead(ctx)
				if err != nil {
					return
				}
				release()
			}
		}()
	}

	writerDone := make(chan struct{})
	go func() {
		release, err := l.AcquireWrite(ctx)
		require.NoError(t, err)
		release()
		close(writerDone)
	}()

	select {
	case <-writerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writer starved by continuous reader load")
	}
	atomic.StoreInt32(&stop, 1)
	wg.Wait()
}
