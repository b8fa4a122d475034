package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numera/internal/core/apperror"
	"numera/internal/core/docnum"
	"numera/internal/core/id"
	"numera/internal/domain/audit"
)

// --- Test doubles ---

type inTxKey struct{}

// serialTxManager runs each top-level transaction under a mutex, which is
// exactly the guarantee serializable isolation gives the allocator.
type serialTxManager struct {
	mu sync.Mutex
}

func (m *serialTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, fn)
}

func (m *serialTxManager) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, fn)
}

func (m *serialTxManager) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(context.WithValue(ctx, inTxKey{}, true))
}

// memStore is an in-memory counter store with the same conflict semantics
// as the PostgreSQL implementation.
type memStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
}

func newMemStore() *memStore {
	return &memStore{counters: make(map[string]*Counter)}
}

func storeKey(docType docnum.DocType, key docnum.PeriodKey) string {
	return string(docType) + "/" + key.String()
}

func (s *memStore) Find(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[storeKey(docType, key)]
	if !ok {
		return nil, nil
	}
	copied := *counter
	return &copied, nil
}

func (s *memStore) Insert(ctx context.Context, counter *Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(counter.DocType, counter.Key())
	if _, exists := s.counters[k]; exists {
		return apperror.NewSequenceConflict(string(counter.DocType))
	}
	copied := *counter
	s.counters[k] = &copied
	return nil
}

func (s *memStore) Increment(ctx context.Context, counterID id.ID, expectedLast int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, counter := range s.counters {
		if counter.ID == counterID {
			if counter.LastNumber != expectedLast {
				return 0, apperror.NewConcurrentModification("SequenceCounter", counterID.String())
			}
			counter.LastNumber++
			counter.UpdatedAt = time.Now().UTC()
			return counter.LastNumber, nil
		}
	}
	return 0, apperror.NewConcurrentModification("SequenceCounter", counterID.String())
}

func (s *memStore) Set(ctx context.Context, docType docnum.DocType, key docnum.PeriodKey, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(docType, key)
	if counter, ok := s.counters[k]; ok {
		counter.LastNumber = value
		counter.UpdatedAt = time.Now().UTC()
		return nil
	}
	counter := NewCounter(docType, key)
	counter.LastNumber = value
	s.counters[k] = counter
	return nil
}

// conflictingStore forces a number of increment conflicts before succeeding.
type conflictingStore struct {
	*memStore
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (s *conflictingStore) Increment(ctx context.Context, counterID id.ID, expectedLast int64) (int64, error) {
	s.mu.Lock()
	s.attempts++
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()

	if remaining > 0 {
		return 0, apperror.NewConcurrentModification("SequenceCounter", counterID.String())
	}
	return s.memStore.Increment(ctx, counterID, expectedLast)
}

// jumpingStore skips a value on increment, simulating an administrative bump.
type jumpingStore struct {
	*memStore
}

func (s *jumpingStore) Increment(ctx context.Context, counterID id.ID, expectedLast int64) (int64, error) {
	if _, err := s.memStore.Increment(ctx, counterID, expectedLast); err != nil {
		return 0, err
	}
	v, err := s.memStore.Increment(ctx, counterID, expectedLast+1)
	return v, err
}

// recordingAudit captures audit entries.
type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (a *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) byAction(action audit.Action) []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Entry
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// --- Tests ---

var testDate = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	return NewService(store, &serialTxManager{}, nil)
}

func TestAllocate_FirstValueIsOne(t *testing.T) {
	svc := newTestService(newMemStore())

	value, err := svc.Allocate(context.Background(), docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestAllocate_Monotonic(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAllocate_IndependentPerType(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	inv, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	quote, err := svc.Allocate(ctx, docnum.TypeQuote, testDate)
	require.NoError(t, err)

	assert.Equal(t, int64(1), inv)
	assert.Equal(t, int64(1), quote)
}

func TestAllocate_PeriodReset(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	_, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	_, err = svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)

	// A new year starts its own counter at 1; the old one is untouched.
	nextYear := testDate.AddDate(1, 0, 0)
	value, err := svc.Allocate(ctx, docnum.TypeInvoice, nextYear)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	current, err := svc.Current(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current)
}

func TestAllocate_ContinuousIgnoresDate(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	first, err := svc.Allocate(ctx, docnum.TypeClient, testDate)
	require.NoError(t, err)
	second, err := svc.Allocate(ctx, docnum.TypeClient, testDate.AddDate(3, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestAllocate_UnknownType(t *testing.T) {
	svc := newTestService(newMemStore())

	_, err := svc.Allocate(context.Background(), docnum.DocType("MYSTERY"), testDate)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeUnknownType))
}

func TestAllocate_ConcurrentDistinctValues(t *testing.T) {
	const n = 100

	svc := newTestService(newMemStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	values := make(chan int64, n)
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
			if err != nil {
				errs <- err
				return
			}
			values <- v
		}()
	}
	wg.Wait()
	close(values)
	close(errs)

	for err := range errs {
		t.Fatalf("allocation failed: %v", err)
	}

	seen := make(map[int64]bool, n)
	for v := range values {
		assert.False(t, seen[v], "value %d allocated twice", v)
		seen[v] = true
	}
	require.Len(t, seen, n)
	for v := int64(1); v <= n; v++ {
		assert.True(t, seen[v], "value %d missing", v)
	}
}

func TestAllocate_RetriesThenSucceeds(t *testing.T) {
	store := &conflictingStore{memStore: newMemStore(), conflicts: 2}
	svc := newTestService(store)
	ctx := context.Background()

	// Seed the counter so attempts hit Increment, not Insert.
	_, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	store.mu.Lock()
	store.attempts = 0
	store.conflicts = 2
	store.mu.Unlock()

	value, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)
	assert.Equal(t, 3, store.attempts)
}

func TestAllocate_ConflictExhaustion(t *testing.T) {
	store := &conflictingStore{memStore: newMemStore(), conflicts: 100}
	svc := newTestService(store)
	ctx := context.Background()

	require.NoError(t, store.memStore.Insert(ctx,
		NewCounter(docnum.TypeInvoice, docnum.PeriodKey{Kind: docnum.ResetYearly, Year: 2026})))

	_, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.Error(t, err)
	assert.True(t, apperror.IsSequenceConflict(err))
	assert.Equal(t, 3, store.attempts)
}

func TestAllocate_GapReported(t *testing.T) {
	store := &jumpingStore{memStore: newMemStore()}
	auditLog := &recordingAudit{}
	svc := NewService(store, &serialTxManager{}, auditLog)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)

	value, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)

	gaps := auditLog.byAction(audit.ActionSequenceGap)
	require.Len(t, gaps, 1)
	assert.Equal(t, audit.SeverityWarning, gaps[0].Severity)
	assert.Equal(t, "SequenceCounter", gaps[0].Entity)
	assert.Contains(t, gaps[0].Description, "previous=1")
	assert.Contains(t, gaps[0].Description, "next=3")
}

func TestAllocate_GapAuditFailureIsIsolated(t *testing.T) {
	store := &jumpingStore{memStore: newMemStore()}
	auditLog := &recordingAudit{err: errors.New("audit store down")}
	svc := NewService(store, &serialTxManager{}, auditLog)
	ctx := context.Background()

	_, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)

	// The gap is detected, the audit write fails, the allocation still wins.
	value, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)
}

func TestPreviewNext_DoesNotAllocate(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	preview, err := svc.PreviewNext(ctx, docnum.TypeQuote, testDate)
	require.NoError(t, err)
	assert.Equal(t, "DEV-2026-000001", preview)

	// Still nothing allocated.
	current, err := svc.Current(ctx, docnum.TypeQuote, testDate)
	require.NoError(t, err)
	assert.Zero(t, current)

	value, err := svc.Allocate(ctx, docnum.TypeQuote, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)
}

func TestSetNext(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	require.NoError(t, svc.SetNext(ctx, docnum.TypeInvoice, testDate, 41))

	value, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)
	assert.Equal(t, int64(42), value)
}

func TestSetNext_RejectsNegative(t *testing.T) {
	svc := newTestService(newMemStore())

	err := svc.SetNext(context.Background(), docnum.TypeInvoice, testDate, -1)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestHealth(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	_, err := svc.Allocate(ctx, docnum.TypeInvoice, testDate)
	require.NoError(t, err)

	report, err := svc.Health(ctx, testDate)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Len(t, report.Summary, len(docnum.Types()))

	inv := report.Summary[docnum.TypeInvoice]
	assert.Equal(t, int64(1), inv.Current)
	require.NotNil(t, inv.LastUpdated)

	quote := report.Summary[docnum.TypeQuote]
	assert.Zero(t, quote.Current)
	assert.Nil(t, quote.LastUpdated)
}

func TestCounterKey(t *testing.T) {
	key := docnum.PeriodKey{Kind: docnum.ResetYearly, Year: 2026}
	counter := NewCounter(docnum.TypeInvoice, key)
	assert.Equal(t, key, counter.Key())
	assert.Equal(t, int64(1), counter.LastNumber)
	assert.Equal(t, fmt.Sprintf("%s/2026", docnum.TypeInvoice), storeKey(counter.DocType, counter.Key()))
}
