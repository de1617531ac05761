package registry

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/logger"
)

// Registry tracks the in-flight ingestion run per document. At most one run
// per document id; a second Start while one is active is rejected.
type Registry struct {
	log *logger.Logger

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func New(baseLog *logger.Logger) *Registry {
	return &Registry{
		log:     baseLog.With("service", "TaskRegistry"),
		running: make(map[uuid.UUID]struct{}),
	}
}

// Start launches fn in a goroutine registered under docID. Returns false
// without launching when a run for the document is already active.
func (r *Registry) Start(ctx context.Context, docID uuid.UUID, fn func(ctx context.Context)) bool {
	r.mu.Lock()
	if _, active := r.running[docID]; active {
		r.mu.Unlock()
		return false
	}
	r.running[docID] = struct{}{}
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("ingestion task panicked", "document_id", docID.String(), "panic", rec)
			}
			r.mu.Lock()
			delete(r.running, docID)
			r.mu.Unlock()
		}()
		fn(ctx)
	}()
	return true
}

func (r *Registry) IsProcessing(docID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, active := r.running[docID]
	return active
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}
