package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeJobRepository struct {
	jobs map[uuid.UUID]domainsync.Job
}

func newFakeJobRepository() *fakeJobRepository {
	return &fakeJobRepository{jobs: make(map[uuid.UUID]domainsync.Job)}
}

func (r *fakeJobRepository) Save(ctx context.Context, job *domainsync.Job) error {
	r.jobs[job.ID] = *job
	return nil
}

func (r *fakeJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, domainsync.ErrJobNotFound
	}
	found := job
	return &found, nil
}

func (r *fakeJobRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domainsync.Job, error) {
	return nil, nil
}

func (r *fakeJobRepository) FindStuckProcessing(ctx context.Context, startedBefore time.Time) ([]domainsync.Job, error) {
	return nil, nil
}

func (r *fakeJobRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

var _ domainsync.JobRepository = (*fakeJobRepository)(nil)

type fakeDeadLetterRepository struct {
	entries map[uuid.UUID]domainsync.DeadLetterEntry
	// failWith makes every call fail, simulating a store outage
	failWith error
}

func newFakeDeadLetterRepository() *fakeDeadLetterRepository {
	return &fakeDeadLetterRepository{entries: make(map[uuid.UUID]domainsync.DeadLetterEntry)}
}

func (r *fakeDeadLetterRepository) Create(ctx context.Context, entry *domainsync.DeadLetterEntry) error {
	r.entries[entry.ID] = *entry
	return nil
}

func (r *fakeDeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.DeadLetterEntry, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	entry, ok := r.entries[id]
	if !ok {
		return nil, domainsync.ErrEntryNotFound
	}
	found := entry
	return &found, nil
}

func (r *fakeDeadLetterRepository) FindUnresolved(ctx context.Context, filter domainsync.DeadLetterFilter) ([]domainsync.DeadLetterEntry, int64, error) {
	if r.failWith != nil {
		return nil, 0, r.failWith
	}
	var unresolved []domainsync.DeadLetterEntry
	for _, e := range r.entries {
		if e.Resolved {
			continue
		}
		if filter.VendorID != "" && e.VendorID != filter.VendorID {
			continue
		}
		unresolved = append(unresolved, e)
	}
	sort.Slice(unresolved, func(i, j int) bool {
		return unresolved[i].CreatedAt.After(unresolved[j].CreatedAt)
	})
	total := int64(len(unresolved))

	start := (filter.Page - 1) * filter.PageSize
	if start >= len(unresolved) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(unresolved) {
		end = len(unresolved)
	}
	return unresolved[start:end], total, nil
}

func (r *fakeDeadLetterRepository) ExistsForJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	for _, e := range r.entries {
		if e.JobID != nil && *e.JobID == jobID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDeadLetterRepository) CountUnresolved(ctx context.Context, vendorID string) (int64, error) {
	if r.failWith != nil {
		return 0, r.failWith
	}
	var count int64
	for _, e := range r.entries {
		if e.Resolved {
			continue
		}
		if vendorID != "" && e.VendorID != vendorID {
			continue
		}
		count++
	}
	return count, nil
}

func (r *fakeDeadLetterRepository) Save(ctx context.Context, entry *domainsync.DeadLetterEntry) error {
	r.entries[entry.ID] = *entry
	return nil
}

func (r *fakeDeadLetterRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.failWith != nil {
		return 0, r.failWith
	}
	var removed int64
	for id, e := range r.entries {
		if e.Resolved && e.ResolvedAt != nil && e.ResolvedAt.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

var _ domainsync.DeadLetterRepository = (*fakeDeadLetterRepository)(nil)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestService() (*Service, *fakeDeadLetterRepository, *fakeJobRepository) {
	entries := newFakeDeadLetterRepository()
	jobs := newFakeJobRepository()
	return NewService(entries, jobs, zap.NewNop()), entries, jobs
}

func exhaustedEntry(t *testing.T, vendorID string) *domainsync.DeadLetterEntry {
	t.Helper()
	job, err := domainsync.NewJob(vendorID, domainsync.OperationCreateOrder, json.RawMessage(`{"orderId":"ORD-1"}`), "corr-1")
	require.NoError(t, err)
	for i := 0; i < job.MaxRetries; i++ {
		job.RecordFailure("agent timeout", "", time.Minute)
	}
	return domainsync.NewDeadLetterEntry(job)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestService_ListUnresolved(t *testing.T) {
	svc, entries, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, entries.Create(ctx, exhaustedEntry(t, "vendor-a")))
	}
	require.NoError(t, entries.Create(ctx, exhaustedEntry(t, "vendor-b")))

	resolved := exhaustedEntry(t, "vendor-a")
	resolved.Resolve("ops")
	require.NoError(t, entries.Create(ctx, resolved))

	all, total := svc.ListUnresolved(ctx, domainsync.DeadLetterFilter{})
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	byVendor, total := svc.ListUnresolved(ctx, domainsync.DeadLetterFilter{VendorID: "vendor-b"})
	assert.Equal(t, int64(1), total)
	require.Len(t, byVendor, 1)
	assert.Equal(t, "vendor-b", byVendor[0].VendorID)

	paged, total := svc.ListUnresolved(ctx, domainsync.DeadLetterFilter{Page: 2, PageSize: 3})
	assert.Equal(t, int64(4), total)
	assert.Len(t, paged, 1)
}

func TestService_Retry(t *testing.T) {
	svc, entries, jobs := newTestService()
	ctx := context.Background()

	entry := exhaustedEntry(t, "vendor-a")
	require.NoError(t, entries.Create(ctx, entry))

	job := svc.Retry(ctx, entry.ID, "ops@example.com")
	require.NotNil(t, job)

	assert.Equal(t, "vendor-a", job.VendorID)
	assert.Equal(t, domainsync.OperationCreateOrder, job.Operation)
	assert.JSONEq(t, `{"orderId":"ORD-1"}`, string(job.Payload))
	assert.Equal(t, domainsync.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount, "the retry budget starts fresh")
	assert.Equal(t, "dlq-retry:"+entry.ID.String(), job.CorrelationID)

	persisted, err := jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, persisted.ID)

	stored := svc.GetDetails(ctx, entry.ID)
	require.NotNil(t, stored)
	assert.True(t, stored.Resolved)
	assert.Equal(t, "ops@example.com", stored.ResolvedBy)

	t.Run("unknown entry yields no job", func(t *testing.T) {
		assert.Nil(t, svc.Retry(ctx, uuid.New(), "ops"))
	})
}

func TestService_Resolve(t *testing.T) {
	svc, entries, _ := newTestService()
	ctx := context.Background()

	entry := exhaustedEntry(t, "vendor-a")
	require.NoError(t, entries.Create(ctx, entry))

	resolved := svc.Resolve(ctx, entry.ID, "first")
	require.NotNil(t, resolved)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "first", resolved.ResolvedBy)

	// second resolution keeps the original resolver
	again := svc.Resolve(ctx, entry.ID, "second")
	require.NotNil(t, again)
	assert.Equal(t, "first", again.ResolvedBy)

	t.Run("unknown entry yields nil", func(t *testing.T) {
		assert.Nil(t, svc.Resolve(ctx, uuid.New(), "ops"))
	})
}

func TestService_UnresolvedCount(t *testing.T) {
	svc, entries, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, entries.Create(ctx, exhaustedEntry(t, "vendor-a")))
	require.NoError(t, entries.Create(ctx, exhaustedEntry(t, "vendor-a")))
	require.NoError(t, entries.Create(ctx, exhaustedEntry(t, "vendor-b")))

	assert.Equal(t, int64(3), svc.UnresolvedCount(ctx, ""))
	assert.Equal(t, int64(2), svc.UnresolvedCount(ctx, "vendor-a"))
}

func TestService_Cleanup(t *testing.T) {
	svc, entries, _ := newTestService()
	ctx := context.Background()

	old := exhaustedEntry(t, "vendor-a")
	old.Resolve("ops")
	resolvedAt := time.Now().Add(-60 * 24 * time.Hour)
	old.ResolvedAt = &resolvedAt
	require.NoError(t, entries.Create(ctx, old))

	recent := exhaustedEntry(t, "vendor-a")
	recent.Resolve("ops")
	require.NoError(t, entries.Create(ctx, recent))

	open := exhaustedEntry(t, "vendor-a")
	require.NoError(t, entries.Create(ctx, open))

	assert.Equal(t, int64(1), svc.Cleanup(ctx, 30*24*time.Hour))

	assert.Nil(t, svc.GetDetails(ctx, old.ID))
	assert.NotNil(t, svc.GetDetails(ctx, recent.ID))
	assert.NotNil(t, svc.GetDetails(ctx, open.ID))
}

func TestService_RepositoryOutageYieldsEmptyResults(t *testing.T) {
	svc, entries, jobs := newTestService()
	ctx := context.Background()

	entry := exhaustedEntry(t, "vendor-a")
	require.NoError(t, entries.Create(ctx, entry))
	entries.failWith = errors.New("connection refused")

	all, total := svc.ListUnresolved(ctx, domainsync.DeadLetterFilter{})
	assert.Nil(t, all)
	assert.Zero(t, total)

	assert.Nil(t, svc.GetDetails(ctx, entry.ID))
	assert.Zero(t, svc.UnresolvedCount(ctx, ""))
	assert.Nil(t, svc.Resolve(ctx, entry.ID, "ops"))
	assert.Zero(t, svc.Cleanup(ctx, 30*24*time.Hour))

	assert.Nil(t, svc.Retry(ctx, entry.ID, "ops"))
	assert.Empty(t, jobs.jobs, "no retry job may be enqueued when the lookup fails")
}
