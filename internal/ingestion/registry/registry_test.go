package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/logger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(log)
}

func TestStartRejectsSecondRun(t *testing.T) {
	r := newTestRegistry(t)
	docID := uuid.New()

	release := make(chan struct{})
	started := make(chan struct{})
	var executions int32

	ok := r.Start(context.Background(), docID, func(ctx context.Context) {
		atomic.AddInt32(&executions, 1)
		close(started)
		<-release
	})
	if !ok {
		t.Fatalf("first start rejected")
	}
	<-started

	if r.Start(context.Background(), docID, func(ctx context.Context) {
		atomic.AddInt32(&executions, 1)
	}) {
		t.Fatalf("second start accepted while first is running")
	}
	if !r.IsProcessing(docID) {
		t.Fatalf("expected IsProcessing=true while task runs")
	}

	close(release)
	waitIdle(t, r, docID)

	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Fatalf("expected 1 execution, got %d", got)
	}
	if r.IsProcessing(docID) {
		t.Fatalf("expected IsProcessing=false after completion")
	}
}

func TestConcurrentStartsRunOnce(t *testing.T) {
	r := newTestRegistry(t)
	docID := uuid.New()

	release := make(chan struct{})
	var executions, accepted int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Start(context.Background(), docID, func(ctx context.Context) {
				atomic.AddInt32(&executions, 1)
				<-release
			}) {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()
	close(release)
	waitIdle(t, r, docID)

	if got := atomic.LoadInt32(&accepted); got != 1 {
		t.Fatalf("expected exactly 1 accepted start, got %d", got)
	}
	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", got)
	}
}

func TestPanicReleasesSlot(t *testing.T) {
	r := newTestRegistry(t)
	docID := uuid.New()

	if !r.Start(context.Background(), docID, func(ctx context.Context) {
		panic("boom")
	}) {
		t.Fatalf("start rejected")
	}
	waitIdle(t, r, docID)

	if !r.Start(context.Background(), docID, func(ctx context.Context) {}) {
		t.Fatalf("expected restart after panic to be accepted")
	}
	waitIdle(t, r, docID)
}

func waitIdle(t *testing.T, r *Registry, docID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !r.IsProcessing(docID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task for %s did not finish", docID)
}
