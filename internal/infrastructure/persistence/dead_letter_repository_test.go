package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

func newDeadLetter(t *testing.T, vendorID string) *domainsync.DeadLetterEntry {
	t.Helper()
	job := newJob(t, vendorID)
	for i := 0; i < job.MaxRetries; i++ {
		job.RecordFailure("agent timeout", "", time.Minute)
	}
	return domainsync.NewDeadLetterEntry(job)
}

func TestGormDeadLetterRepository_CreateAndFind(t *testing.T) {
	repo := NewGormDeadLetterRepository(setupTestDB(t))
	ctx := context.Background()

	entry := newDeadLetter(t, "vendor-a")
	require.NoError(t, repo.Create(ctx, entry))

	found, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, found.ID)
	assert.Equal(t, 5, found.AttemptCount)
	assert.Equal(t, "agent timeout", found.FailureReason)
	assert.False(t, found.Resolved)
	require.NotNil(t, found.JobID)
	assert.Equal(t, *entry.JobID, *found.JobID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domainsync.ErrEntryNotFound)
}

func TestGormDeadLetterRepository_ExistsForJob(t *testing.T) {
	repo := NewGormDeadLetterRepository(setupTestDB(t))
	ctx := context.Background()

	entry := newDeadLetter(t, "vendor-a")
	require.NoError(t, repo.Create(ctx, entry))

	exists, err := repo.ExistsForJob(ctx, *entry.JobID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForJob(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormDeadLetterRepository_FindUnresolved(t *testing.T) {
	repo := NewGormDeadLetterRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newDeadLetter(t, "vendor-a")))
	}
	require.NoError(t, repo.Create(ctx, newDeadLetter(t, "vendor-b")))

	resolved := newDeadLetter(t, "vendor-a")
	resolved.Resolve("ops")
	require.NoError(t, repo.Create(ctx, resolved))

	all, total, err := repo.FindUnresolved(ctx, domainsync.DeadLetterFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	byVendor, total, err := repo.FindUnresolved(ctx, domainsync.DeadLetterFilter{
		VendorID: "vendor-b",
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, byVendor, 1)
	assert.Equal(t, "vendor-b", byVendor[0].VendorID)

	paged, total, err := repo.FindUnresolved(ctx, domainsync.DeadLetterFilter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, paged, 1)
}

func TestGormDeadLetterRepository_CountUnresolved(t *testing.T) {
	repo := NewGormDeadLetterRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newDeadLetter(t, "vendor-a")))
	require.NoError(t, repo.Create(ctx, newDeadLetter(t, "vendor-a")))
	require.NoError(t, repo.Create(ctx, newDeadLetter(t, "vendor-b")))

	total, err := repo.CountUnresolved(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	vendorA, err := repo.CountUnresolved(ctx, "vendor-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), vendorA)
}

func TestGormDeadLetterRepository_SaveResolution(t *testing.T) {
	repo := NewGormDeadLetterRepository(setupTestDB(t))
	ctx := context.Background()

	entry := newDeadLetter(t, "vendor-a")
	require.NoError(t, repo.Create(ctx, entry))

	entry.Resolve("ops@example.com")
	require.NoError(t, repo.Save(ctx, entry))

	found, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, found.Resolved)
	assert.Equal(t, "ops@example.com", found.ResolvedBy)
	assert.NotNil(t, found.ResolvedAt)
}

func TestGormDeadLetterRepository_DeleteResolvedBefore(t *testing.T) {
	repo := NewGormDeadLetterRepository(setupTestDB(t))
	ctx := context.Background()

	old := newDeadLetter(t, "vendor-a")
	old.Resolve("ops")
	resolvedAt := time.Now().Add(-60 * 24 * time.Hour)
	old.ResolvedAt = &resolvedAt
	require.NoError(t, repo.Create(ctx, old))

	recent := newDeadLetter(t, "vendor-a")
	recent.Resolve("ops")
	require.NoError(t, repo.Create(ctx, recent))

	open := newDeadLetter(t, "vendor-a")
	require.NoError(t, repo.Create(ctx, open))

	removed, err := repo.DeleteResolvedBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.FindByID(ctx, old.ID)
	assert.ErrorIs(t, err, domainsync.ErrEntryNotFound)
	_, err = repo.FindByID(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = repo.FindByID(ctx, open.ID)
	assert.NoError(t, err)
}
