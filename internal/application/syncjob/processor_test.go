package syncjob

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/agent"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
	"github.com/erp/agentsync/internal/infrastructure/breaker"
)

func testBreakers() *breaker.Manager {
	return breaker.NewManager(breaker.Settings{
		VolumeThreshold:  1000, // effectively disabled for dispatch tests
		FailureThreshold: 100,
		ResetTimeout:     time.Minute,
		CallTimeout:      time.Second,
		RollingWindow:    time.Minute,
	}, zap.NewNop())
}

type processorFixture struct {
	processor   *Processor
	jobs        *inMemoryJobRepository
	deadLetters *inMemoryDeadLetterRepository
	agents      *inMemoryAgentRepository
	client      *fakeAgentClient
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		jobs:        newInMemoryJobRepository(),
		deadLetters: newInMemoryDeadLetterRepository(),
		agents:      newInMemoryAgentRepository(),
		client:      &fakeAgentClient{},
	}
	f.processor = NewProcessor(f.jobs, f.deadLetters, f.agents, f.client, testBreakers(), ProcessorConfig{
		Concurrency:     2,
		PollInterval:    10 * time.Millisecond,
		RetryBaseDelay:  time.Minute,
		CallbackTimeout: 30 * time.Minute,
	}, zap.NewNop())
	return f
}

func (f *processorFixture) registerAgent(t *testing.T, vendorID string) {
	t.Helper()
	a, err := agent.NewAgent(vendorID, "https://agent.example", "hash", "1.0.0")
	require.NoError(t, err)
	require.NoError(t, f.agents.Save(context.Background(), a))
}

func (f *processorFixture) enqueueJob(t *testing.T, vendorID string) *domainsync.Job {
	t.Helper()
	job, err := domainsync.NewJob(vendorID, domainsync.OperationCreateOrder, json.RawMessage(`{"orderId":"ORD-1"}`), "corr-1")
	require.NoError(t, err)
	require.NoError(t, f.jobs.Save(context.Background(), job))
	return job
}

func TestProcessor_ExhaustionProducesOneDeadLetterEntry(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "vendor-a")
	f.client.sendErr = errors.New("Agent timeout")
	job := f.enqueueJob(t, "vendor-a")

	// five dispatch attempts, all failing
	for i := 0; i < 5; i++ {
		stored := f.jobs.get(job.ID)
		stored.Start()
		require.NoError(t, f.jobs.Save(ctx, &stored))
		f.processor.dispatch(ctx, stored)
	}

	final := f.jobs.get(job.ID)
	assert.Equal(t, domainsync.JobStatusFailed, final.Status)
	assert.Equal(t, 5, final.RetryCount)

	entries := f.deadLetters.all()
	require.Len(t, entries, 1, "exhaustion must produce exactly one dead letter entry")
	entry := entries[0]
	require.NotNil(t, entry.JobID)
	assert.Equal(t, job.ID, *entry.JobID)
	assert.Equal(t, 5, entry.AttemptCount)
	assert.Equal(t, "Agent timeout", entry.FailureReason)
	assert.False(t, entry.Resolved)

	t.Run("repeated exhaustion does not duplicate the entry", func(t *testing.T) {
		stored := f.jobs.get(job.ID)
		f.processor.failAttempt(ctx, &stored, "Agent timeout", "")
		assert.Len(t, f.deadLetters.all(), 1)
	})
}

func TestProcessor_FailedAttemptSchedulesRetry(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "vendor-a")
	f.client.sendErr = errors.New("connection refused")
	job := f.enqueueJob(t, "vendor-a")

	stored := f.jobs.get(job.ID)
	stored.Start()
	require.NoError(t, f.jobs.Save(ctx, &stored))
	f.processor.dispatch(ctx, stored)

	after := f.jobs.get(job.ID)
	assert.Equal(t, domainsync.JobStatusPending, after.Status)
	assert.Equal(t, 1, after.RetryCount)
	require.NotNil(t, after.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *after.NextRetryAt, 2*time.Second)

	// not yet due: the next poll must skip it
	due, err := f.jobs.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = f.jobs.FindDue(ctx, time.Now().Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestProcessor_DispatchSuccessAwaitsCallback(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "vendor-a")
	job := f.enqueueJob(t, "vendor-a")

	stored := f.jobs.get(job.ID)
	stored.Start()
	require.NoError(t, f.jobs.Save(ctx, &stored))
	f.processor.dispatch(ctx, stored)

	after := f.jobs.get(job.ID)
	assert.Equal(t, domainsync.JobStatusProcessing, after.Status, "a successful send leaves the job awaiting its callback")
	assert.Equal(t, 1, f.client.calls())
}

func TestProcessor_UnknownOrOfflineAgentFailsAttempt(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	t.Run("unknown agent", func(t *testing.T) {
		job := f.enqueueJob(t, "vendor-ghost")
		stored := f.jobs.get(job.ID)
		stored.Start()
		require.NoError(t, f.jobs.Save(ctx, &stored))
		f.processor.dispatch(ctx, stored)

		after := f.jobs.get(job.ID)
		assert.Equal(t, 1, after.RetryCount)
		assert.Contains(t, after.ErrorMessage, "agent lookup failed")
		assert.Zero(t, f.client.calls(), "no send without a registered agent")
	})

	t.Run("offline agent", func(t *testing.T) {
		f.registerAgent(t, "vendor-b")
		a, err := f.agents.FindByVendor(ctx, "vendor-b")
		require.NoError(t, err)
		require.NoError(t, a.SetStatus(agent.AgentStatusOffline))
		require.NoError(t, f.agents.Save(ctx, a))

		job := f.enqueueJob(t, "vendor-b")
		stored := f.jobs.get(job.ID)
		stored.Start()
		require.NoError(t, f.jobs.Save(ctx, &stored))
		f.processor.dispatch(ctx, stored)

		after := f.jobs.get(job.ID)
		assert.Equal(t, "agent is offline", after.ErrorMessage)
		assert.Zero(t, f.client.calls())
	})
}

func TestProcessor_OpenBreakerCountsAsFailure(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "vendor-a")
	f.client.sendErr = errors.New("boom")

	// trip the breaker for (vendor-a, order)
	breakers := breaker.NewManager(breaker.Settings{
		VolumeThreshold:  1,
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		CallTimeout:      time.Second,
		RollingWindow:    time.Minute,
	}, zap.NewNop())
	f.processor.breakers = breakers

	first := f.enqueueJob(t, "vendor-a")
	stored := f.jobs.get(first.ID)
	stored.Start()
	require.NoError(t, f.jobs.Save(ctx, &stored))
	f.processor.dispatch(ctx, stored)
	require.Equal(t, breaker.StateOpen, breakers.State("vendor-a", "order"))

	second := f.enqueueJob(t, "vendor-a")
	stored = f.jobs.get(second.ID)
	stored.Start()
	require.NoError(t, f.jobs.Save(ctx, &stored))
	f.processor.dispatch(ctx, stored)

	after := f.jobs.get(second.ID)
	assert.Equal(t, domainsync.JobStatusPending, after.Status)
	assert.Contains(t, after.ErrorMessage, "circuit open")
	assert.Equal(t, 1, f.client.calls(), "the open breaker must short-circuit the send")
}

func TestProcessor_HandleCallback(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "vendor-a")

	t.Run("success completes the job", func(t *testing.T) {
		job := f.enqueueJob(t, "vendor-a")
		stored := f.jobs.get(job.ID)
		stored.Start()
		require.NoError(t, f.jobs.Save(ctx, &stored))

		require.NoError(t, f.processor.HandleCallback(ctx, job.ID, true, "ERP-REF-7", ""))
		after := f.jobs.get(job.ID)
		assert.Equal(t, domainsync.JobStatusCompleted, after.Status)
		assert.Equal(t, "ERP-REF-7", after.ERPReference)

		// duplicate callbacks on terminal jobs are ignored
		require.NoError(t, f.processor.HandleCallback(ctx, job.ID, true, "ERP-REF-8", ""))
		require.NoError(t, f.processor.HandleCallback(ctx, job.ID, false, "", "late failure"))
		after = f.jobs.get(job.ID)
		assert.Equal(t, "ERP-REF-7", after.ERPReference)
		assert.Equal(t, domainsync.JobStatusCompleted, after.Status)
	})

	t.Run("failure re-enters the retry path", func(t *testing.T) {
		job := f.enqueueJob(t, "vendor-a")
		stored := f.jobs.get(job.ID)
		stored.Start()
		require.NoError(t, f.jobs.Save(ctx, &stored))

		require.NoError(t, f.processor.HandleCallback(ctx, job.ID, false, "", "order rejected"))
		after := f.jobs.get(job.ID)
		assert.Equal(t, domainsync.JobStatusPending, after.Status)
		assert.Equal(t, 1, after.RetryCount)
		assert.Contains(t, after.ErrorMessage, "order rejected")
	})

	t.Run("failure callback for a pending job is rejected", func(t *testing.T) {
		job := f.enqueueJob(t, "vendor-a")
		err := f.processor.HandleCallback(ctx, job.ID, false, "", "nope")
		assert.ErrorIs(t, err, domainsync.ErrJobNotProcessing)
	})

	t.Run("unknown job", func(t *testing.T) {
		err := f.processor.HandleCallback(ctx, uuid.New(), true, "", "")
		assert.ErrorIs(t, err, domainsync.ErrJobNotFound)
	})
}

func TestProcessor_ReapStuck(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "vendor-a")

	stuckJob := f.enqueueJob(t, "vendor-a")
	stored := f.jobs.get(stuckJob.ID)
	stored.Start()
	startedLongAgo := time.Now().Add(-time.Hour)
	stored.StartedAt = &startedLongAgo
	require.NoError(t, f.jobs.Save(ctx, &stored))

	freshJob := f.enqueueJob(t, "vendor-a")
	stored = f.jobs.get(freshJob.ID)
	stored.Start()
	require.NoError(t, f.jobs.Save(ctx, &stored))

	reaped, err := f.processor.ReapStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	after := f.jobs.get(stuckJob.ID)
	assert.Equal(t, domainsync.JobStatusPending, after.Status)
	assert.Equal(t, 1, after.RetryCount)
	assert.Contains(t, after.ErrorMessage, "no completion callback")

	untouched := f.jobs.get(freshJob.ID)
	assert.Equal(t, domainsync.JobStatusProcessing, untouched.Status)
}

func TestProcessor_PollLoopDispatchesDueJobs(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()
	f.registerAgent(t, "vendor-a")
	job := f.enqueueJob(t, "vendor-a")

	f.processor.Start(ctx)
	defer f.processor.Stop()

	assert.Eventually(t, func() bool {
		return f.jobs.get(job.ID).Status == domainsync.JobStatusProcessing
	}, 2*time.Second, 10*time.Millisecond, "the poll loop should claim and dispatch the job")
	assert.Eventually(t, func() bool {
		return f.client.calls() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// completing via callback while the processor runs
	require.NoError(t, f.processor.HandleCallback(ctx, job.ID, true, "ERP-REF-1", ""))
	assert.Equal(t, domainsync.JobStatusCompleted, f.jobs.get(job.ID).Status)
}

func TestProcessor_StartIsIdempotent(t *testing.T) {
	f := newProcessorFixture(t)
	ctx := context.Background()

	f.processor.Start(ctx)
	f.processor.Start(ctx)
	f.processor.Stop()
	f.processor.Stop()
}
