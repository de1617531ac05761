package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/pagenode-backend/internal/clients/qdrant"
	"github.com/yungbote/pagenode-backend/internal/ingestion/extractor"
	"github.com/yungbote/pagenode-backend/internal/ingestion/registry"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/types"
)

// eventLog records cross-fake call ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) indexOf(ev string) int {
	for i, e := range l.all() {
		if e == ev {
			return i
		}
	}
	return -1
}

// --- fakes ---

type fakeDocRepo struct {
	mu        sync.Mutex
	docs      map[uuid.UUID]*types.Document
	statusLog map[uuid.UUID][]types.DocumentStatus
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		docs:      make(map[uuid.UUID]*types.Document),
		statusLog: make(map[uuid.UUID][]types.DocumentStatus),
	}
}

func (r *fakeDocRepo) put(doc *types.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
}

func (r *fakeDocRepo) statuses(id uuid.UUID) []types.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.DocumentStatus(nil), r.statusLog[id]...)
}

func (r *fakeDocRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.Document) (*types.Document, error) {
	r.put(doc)
	return doc, nil
}

func (r *fakeDocRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocRepo) GetByHash(ctx context.Context, tx *gorm.DB, hash string) (*types.Document, error) {
	return nil, nil
}

func (r *fakeDocRepo) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.Document, int64, error) {
	return nil, 0, nil
}

func (r *fakeDocRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	if v, ok := fields["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := fields["author"].(string); ok {
		doc.Author = v
	}
	if v, ok := fields["page_count"].(int); ok {
		doc.PageCount = v
	}
	return nil
}

func (r *fakeDocRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, to types.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	if doc.Status != to && !types.CanTransition(doc.Status, to) {
		return fmt.Errorf("illegal status transition %s -> %s", doc.Status, to)
	}
	doc.Status = to
	r.statusLog[id] = append(r.statusLog[id], to)
	return nil
}

func (r *fakeDocRepo) SetConceptCount(ctx context.Context, tx *gorm.DB, id uuid.UUID, count int) error {
	return nil
}

func (r *fakeDocRepo) FindByStatus(ctx context.Context, tx *gorm.DB, statuses []types.DocumentStatus) ([]*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Document
	for _, doc := range r.docs {
		for _, st := range statuses {
			if doc.Status == st {
				cp := *doc
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (r *fakeDocRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	return false, nil
}

type fakeChunkRepo struct {
	mu     sync.Mutex
	log    *eventLog
	rows   []*types.Chunk
	marked bool
}

func (r *fakeChunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*types.Chunk) ([]*types.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.add("chunks.create")
	for _, c := range chunks {
		c.ID = uuid.New()
	}
	r.rows = append(r.rows, chunks...)
	return chunks, nil
}

func (r *fakeChunkRepo) ListByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, offset, limit int) ([]*types.Chunk, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Chunk(nil), r.rows...), int64(len(r.rows)), nil
}

func (r *fakeChunkRepo) GetEmbeddedByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID, limit int) ([]*types.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.marked {
		return nil, nil
	}
	if limit > len(r.rows) {
		limit = len(r.rows)
	}
	return append([]*types.Chunk(nil), r.rows[:limit]...), nil
}

func (r *fakeChunkRepo) MarkEmbedded(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.add("chunks.mark_embedded")
	r.marked = true
	for _, c := range r.rows {
		c.HasEmbedding = true
	}
	return nil
}

func (r *fakeChunkRepo) CountByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.rows)), nil
}

func (r *fakeChunkRepo) DeleteByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.add("chunks.delete")
	r.rows = nil
	return nil
}

type fakeTocRepo struct {
	mu      sync.Mutex
	entries []*types.TocEntry
	deletes int
}

func (r *fakeTocRepo) CreateBatch(ctx context.Context, tx *gorm.DB, entries []*types.TocEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *fakeTocRepo) ListByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) ([]*types.TocEntry, error) {
	return nil, nil
}

func (r *fakeTocRepo) DeleteByDocument(ctx context.Context, tx *gorm.DB, docID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	r.entries = nil
	return nil
}

func (r *fakeTocRepo) list() []*types.TocEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.TocEntry(nil), r.entries...)
}

func (r *fakeTocRepo) deleteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deletes
}

type fakeSettingRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func (r *fakeSettingRepo) Get(ctx context.Context, tx *gorm.DB, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key], nil
}

func (r *fakeSettingRepo) Set(ctx context.Context, tx *gorm.DB, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = make(map[string]string)
	}
	r.values[key] = value
	return nil
}

func (r *fakeSettingRepo) All(ctx context.Context, tx *gorm.DB) (map[string]string, error) {
	return r.values, nil
}

type fakeExtractor struct {
	mu     sync.Mutex
	calls  int
	result *extractor.Extraction
	err    error
}

func (e *fakeExtractor) Extract(ctx context.Context, path string) (*extractor.Extraction, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *fakeExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeVectors struct {
	mu       sync.Mutex
	log      *eventLog
	upserted int
}

func (v *fakeVectors) Upsert(ctx context.Context, points []qdrant.ChunkVector) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log.add("vectors.upsert")
	v.upserted += len(points)
	return nil
}

func (v *fakeVectors) DeleteByDocument(ctx context.Context, docID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.log.add("vectors.delete")
	return nil
}

type fakeConcepts struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeConcepts) ExtractForDocument(ctx context.Context, docID uuid.UUID, title, author string) (int, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type fakeCards struct {
	err error
}

func (f *fakeCards) GenerateForDocument(ctx context.Context, docID uuid.UUID) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

// --- fixtures ---

type fixture struct {
	svc     *Service
	docs    *fakeDocRepo
	chunks  *fakeChunkRepo
	tocs    *fakeTocRepo
	ext     *fakeExtractor
	vectors *fakeVectors
	events  *eventLog
}

func textPages() []extractor.PageText {
	return []extractor.PageText{
		{PageNumber: 1, Text: strings.Repeat("This is a sentence of page one. ", 20)},
		{PageNumber: 2, Text: strings.Repeat("This is a sentence of page two. ", 20)},
	}
}

func newFixture(t *testing.T, mutate func(opts *Options)) *fixture {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	events := &eventLog{}
	docs := newFakeDocRepo()
	chunks := &fakeChunkRepo{log: events}
	tocs := &fakeTocRepo{}
	ext := &fakeExtractor{result: &extractor.Extraction{
		Title:     "Extracted Title",
		Author:    "Extracted Author",
		PageCount: 2,
		Pages:     textPages(),
	}}
	vectors := &fakeVectors{log: events}

	opts := Options{
		Docs:     docs,
		Chunks:   chunks,
		Tocs:     tocs,
		Settings: &fakeSettingRepo{values: map[string]string{types.SettingLLMModel: "test-model"}},
		Extract:  ext,
		Fetch: func(ctx context.Context, key string) (string, func(), error) {
			return "/tmp/fake.pdf", func() {}, nil
		},
		Embedder: &fakeEmbedder{},
		Vectors:  vectors,
		Concepts: &fakeConcepts{},
		Cards:    &fakeCards{},
		Registry: registry.New(log),
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &fixture{
		svc:     New(opts, log),
		docs:    docs,
		chunks:  chunks,
		tocs:    tocs,
		ext:     ext,
		vectors: vectors,
		events:  events,
	}
}

func (f *fixture) addDoc(status types.DocumentStatus) uuid.UUID {
	id := uuid.New()
	f.docs.put(&types.Document{
		ID:         id,
		Title:      "My Upload",
		StorageKey: "documents/" + id.String() + ".pdf",
		Status:     status,
	})
	return id
}

func assertStatuses(t *testing.T, got, want []types.DocumentStatus) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("status log mismatch: want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status log mismatch at %d: want %v, got %v", i, want, got)
		}
	}
}

// --- tests ---

func TestRunHappyPathWithLLM(t *testing.T) {
	f := newFixture(t, nil)
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	assertStatuses(t, f.docs.statuses(id), []types.DocumentStatus{
		types.StatusExtracting,
		types.StatusChunking,
		types.StatusEmbedding,
		types.StatusExtractingConcepts,
		types.StatusConceptsReady,
	})
	if f.vectors.upserted == 0 {
		t.Fatalf("expected vectors upserted")
	}
	if !f.chunks.marked {
		t.Fatalf("expected chunks marked embedded")
	}
}

func TestRunNeedsOCRStopsEarly(t *testing.T) {
	f := newFixture(t, nil)
	f.ext.result = &extractor.Extraction{
		PageCount: 3,
		Pages: []extractor.PageText{
			{PageNumber: 1, Text: "x"},
			{PageNumber: 2, Text: ""},
			{PageNumber: 3, Text: "  "},
		},
		NeedsOCR: true,
	}
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	assertStatuses(t, f.docs.statuses(id), []types.DocumentStatus{
		types.StatusExtracting,
		types.StatusNeedsOCR,
	})
	if len(f.chunks.rows) != 0 {
		t.Fatalf("expected no chunks for scanned document, got %d", len(f.chunks.rows))
	}
}

func TestRunZeroChunksGoesReady(t *testing.T) {
	f := newFixture(t, nil)
	f.ext.result = &extractor.Extraction{
		PageCount: 1,
		Pages:     []extractor.PageText{{PageNumber: 1, Text: "   \n  "}},
	}
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	assertStatuses(t, f.docs.statuses(id), []types.DocumentStatus{
		types.StatusExtracting,
		types.StatusChunking,
		types.StatusReady,
	})
}

func TestRunNoLLMConfiguredGoesReady(t *testing.T) {
	f := newFixture(t, func(opts *Options) {
		opts.Settings = &fakeSettingRepo{}
	})
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	assertStatuses(t, f.docs.statuses(id), []types.DocumentStatus{
		types.StatusExtracting,
		types.StatusChunking,
		types.StatusEmbedding,
		types.StatusReady,
	})
	if !f.chunks.marked {
		t.Fatalf("expected embedding to complete before the LLM gate")
	}
}

func TestRunNoEmbedderSkipsVectors(t *testing.T) {
	f := newFixture(t, func(opts *Options) {
		opts.Embedder = nil
		opts.Vectors = nil
	})
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	assertStatuses(t, f.docs.statuses(id), []types.DocumentStatus{
		types.StatusExtracting,
		types.StatusChunking,
		types.StatusEmbedding,
		types.StatusReady,
	})
	if f.chunks.marked {
		t.Fatalf("chunks must not be flagged embedded without a backend")
	}
}

func TestRunTotalLLMFailureStillConceptsReady(t *testing.T) {
	f := newFixture(t, func(opts *Options) {
		opts.Concepts = &fakeConcepts{err: fmt.Errorf("llm exploded")}
		opts.Cards = &fakeCards{err: fmt.Errorf("llm exploded")}
	})
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	statuses := f.docs.statuses(id)
	if statuses[len(statuses)-1] != types.StatusConceptsReady {
		t.Fatalf("expected concepts_ready after total LLM failure, got %v", statuses)
	}
}

func TestRunEmbedFailureSetsError(t *testing.T) {
	f := newFixture(t, func(opts *Options) {
		opts.Embedder = &fakeEmbedder{err: fmt.Errorf("embedding backend down")}
	})
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	statuses := f.docs.statuses(id)
	if statuses[len(statuses)-1] != types.StatusError {
		t.Fatalf("expected error status, got %v", statuses)
	}
	if f.chunks.marked {
		t.Fatalf("chunks must not be flagged embedded after a failed embed")
	}
}

func TestRunPurgesBeforeReembedding(t *testing.T) {
	f := newFixture(t, nil)
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	events := f.events.all()
	chunkDelete := f.events.indexOf("chunks.delete")
	chunkCreate := f.events.indexOf("chunks.create")
	vecDelete := f.events.indexOf("vectors.delete")
	vecUpsert := f.events.indexOf("vectors.upsert")

	if chunkDelete == -1 || chunkCreate == -1 || chunkDelete > chunkCreate {
		t.Fatalf("expected chunk rows deleted before re-insert, events=%v", events)
	}
	if vecDelete == -1 || vecUpsert == -1 || vecDelete > vecUpsert {
		t.Fatalf("expected vector purge before upsert, events=%v", events)
	}
	mark := f.events.indexOf("chunks.mark_embedded")
	if mark == -1 || mark < vecUpsert {
		t.Fatalf("expected mark_embedded after all upserts, events=%v", events)
	}
}

func TestRunStoresTocEntries(t *testing.T) {
	f := newFixture(t, nil)
	f.ext.result.Toc = []extractor.TocItem{
		{Title: "Chapter 1", Level: 1, PageNumber: 1},
		{Title: "Section 1.1", Level: 2, PageNumber: 2},
	}
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	entries := f.tocs.list()
	if len(entries) != 2 {
		t.Fatalf("toc rows = %d, want 2", len(entries))
	}
	if entries[0].DocumentID != id || entries[0].Title != "Chapter 1" || entries[0].Level != 1 || entries[0].PageNumber != 1 {
		t.Fatalf("first toc row = %+v", entries[0])
	}
	if entries[1].Title != "Section 1.1" || entries[1].Level != 2 || entries[1].PageNumber != 2 {
		t.Fatalf("second toc row = %+v", entries[1])
	}
}

func TestRunReplacesTocOnRecoveryRerun(t *testing.T) {
	f := newFixture(t, nil)
	f.ext.result.Toc = []extractor.TocItem{
		{Title: "Chapter 1", Level: 1, PageNumber: 1},
		{Title: "Chapter 2", Level: 1, PageNumber: 9},
	}
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)
	if got := len(f.tocs.list()); got != 2 {
		t.Fatalf("toc rows after first run = %d, want 2", got)
	}

	// A crash mid-chunking restarts the whole pipeline; toc rows must be
	// replaced, not appended.
	f.docs.put(&types.Document{
		ID:         id,
		Title:      "My Upload",
		StorageKey: "documents/" + id.String() + ".pdf",
		Status:     types.StatusChunking,
	})
	f.svc.Run(context.Background(), id)

	if got := len(f.tocs.list()); got != 2 {
		t.Fatalf("toc rows after rerun = %d, want 2 (no duplicates)", got)
	}
	if got := f.tocs.deleteCount(); got != 2 {
		t.Fatalf("toc delete calls = %d, want one purge per run", got)
	}
}

type panickyExtractor struct{}

func (panickyExtractor) Extract(ctx context.Context, path string) (*extractor.Extraction, error) {
	panic("parser blew up")
}

func TestRunPanicSetsErrorStatus(t *testing.T) {
	f := newFixture(t, func(opts *Options) {
		opts.Extract = panickyExtractor{}
	})
	id := f.addDoc(types.StatusPending)

	f.svc.Run(context.Background(), id)

	statuses := f.docs.statuses(id)
	if len(statuses) == 0 || statuses[len(statuses)-1] != types.StatusError {
		t.Fatalf("expected error status after a panicking stage, got %v", statuses)
	}
}

func TestRecoverOnStartupClassification(t *testing.T) {
	f := newFixture(t, nil)

	fullRestart := f.addDoc(types.StatusChunking)
	llmOnly := f.addDoc(types.StatusExtractingConcepts)
	done := f.addDoc(types.StatusReady)

	if err := f.svc.RecoverOnStartup(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	waitForIdle(t, f.svc, fullRestart, llmOnly, done)

	// The stuck-pipeline document restarted from extraction.
	assertStatuses(t, f.docs.statuses(fullRestart), []types.DocumentStatus{
		types.StatusExtracting,
		types.StatusChunking,
		types.StatusEmbedding,
		types.StatusExtractingConcepts,
		types.StatusConceptsReady,
	})

	// The LLM-stage document skipped extract/chunk/embed entirely.
	assertStatuses(t, f.docs.statuses(llmOnly), []types.DocumentStatus{
		types.StatusExtractingConcepts,
		types.StatusConceptsReady,
	})
	if f.ext.callCount() != 1 {
		t.Fatalf("expected exactly 1 extraction call, got %d", f.ext.callCount())
	}

	// Finished documents are untouched.
	if len(f.docs.statuses(done)) != 0 {
		t.Fatalf("expected no transitions for ready document, got %v", f.docs.statuses(done))
	}
}

func waitForIdle(t *testing.T, svc *Service, ids ...uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		busy := false
		for _, id := range ids {
			if svc.IsProcessing(id) {
				busy = true
				break
			}
		}
		if !busy {
			// Give just-finished goroutines a beat to flush their logs.
			time.Sleep(10 * time.Millisecond)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pipeline tasks did not finish")
}
