package syncjob

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/agent"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
	"github.com/erp/agentsync/internal/infrastructure/breaker"
)

// timeNow is replaceable in tests
var timeNow = time.Now

// ProcessorConfig holds the dispatch loop settings
type ProcessorConfig struct {
	// Concurrency is the number of dispatch workers
	Concurrency int
	// PollInterval is how often due jobs are polled
	PollInterval time.Duration
	// RetryBaseDelay is the base delay for exponential backoff
	RetryBaseDelay time.Duration
	// CallbackTimeout is how long a dispatched job may await its callback
	// before the reaper fails it
	CallbackTimeout time.Duration
}

// Processor dispatches due jobs to agents through a worker pool. Dispatch is
// fire-and-forget: a job stays in PROCESSING until the agent reports the
// terminal outcome through HandleCallback or the reaper times it out.
type Processor struct {
	jobs        domainsync.JobRepository
	deadLetters domainsync.DeadLetterRepository
	agents      agent.Repository
	client      domainsync.AgentClient
	breakers    *breaker.Manager
	config      ProcessorConfig
	logger      *zap.Logger

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	jobCh     chan domainsync.Job
}

// NewProcessor creates a new job processor
func NewProcessor(
	jobs domainsync.JobRepository,
	deadLetters domainsync.DeadLetterRepository,
	agents agent.Repository,
	client domainsync.AgentClient,
	breakers *breaker.Manager,
	config ProcessorConfig,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		jobs:        jobs,
		deadLetters: deadLetters,
		agents:      agents,
		client:      client,
		breakers:    breakers,
		config:      config,
		logger:      logger,
	}
}

// Start launches the poll loop and the worker pool
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.stopCh = make(chan struct{})
	p.jobCh = make(chan domainsync.Job)
	p.mu.Unlock()

	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.logger.Info("sync job processor started",
		zap.Int("concurrency", p.config.Concurrency),
		zap.Duration("poll_interval", p.config.PollInterval))
}

// Stop drains the worker pool and waits for in-flight dispatches
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("sync job processor stopped")
}

// pollLoop periodically claims due jobs and feeds them to the workers
func (p *Processor) pollLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.jobCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce claims one batch of due jobs and marks them processing before
// handing them to the pool, so the next poll cannot claim them again
func (p *Processor) pollOnce(ctx context.Context) {
	due, err := p.jobs.FindDue(ctx, timeNow(), p.config.Concurrency*2)
	if err != nil {
		p.logger.Error("failed to poll due jobs", zap.Error(err))
		return
	}
	for i := range due {
		job := due[i]
		job.Start()
		if err := p.jobs.Save(ctx, &job); err != nil {
			p.logger.Error("failed to claim job",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
			continue
		}
		select {
		case p.jobCh <- job:
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// worker dispatches claimed jobs until the channel closes
func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobCh {
		p.dispatch(ctx, job)
	}
}

// dispatch sends one job to its agent. A successful send leaves the job in
// PROCESSING awaiting the callback; any failure re-enters the retry path.
func (p *Processor) dispatch(ctx context.Context, job domainsync.Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while dispatching job",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r))
			p.failAttempt(ctx, &job, fmt.Sprintf("panic: %v", r), string(debug.Stack()))
		}
	}()

	a, err := p.agents.FindByVendor(ctx, job.VendorID)
	if err != nil {
		p.failAttempt(ctx, &job, "agent lookup failed: "+err.Error(), "")
		return
	}
	if !a.IsReachable() {
		p.failAttempt(ctx, &job, "agent is offline", "")
		return
	}

	err = p.breakers.Execute(ctx, job.VendorID, job.Operation.Family(), func(callCtx context.Context) error {
		return p.client.SendOrder(callCtx, a, job.Operation, job.Payload, job.CorrelationID)
	})
	if err != nil {
		p.failAttempt(ctx, &job, err.Error(), "")
		return
	}

	p.logger.Debug("job dispatched, awaiting callback",
		zap.String("job_id", job.ID.String()),
		zap.String("vendor_id", job.VendorID),
		zap.String("operation", job.Operation.String()))
}

// failAttempt records one failed attempt and dead-letters the job when the
// retry budget is exhausted
func (p *Processor) failAttempt(ctx context.Context, job *domainsync.Job, reason, stack string) {
	exhausted := job.RecordFailure(reason, stack, p.config.RetryBaseDelay)
	if err := p.jobs.Save(ctx, job); err != nil {
		p.logger.Error("failed to persist job failure",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return
	}

	if !exhausted {
		p.logger.Warn("job attempt failed, retry scheduled",
			zap.String("job_id", job.ID.String()),
			zap.String("vendor_id", job.VendorID),
			zap.Int("retry_count", job.RetryCount),
			zap.String("reason", reason))
		return
	}
	p.moveToDeadLetter(ctx, job)
}

// moveToDeadLetter captures an exhausted job as exactly one dead letter
// entry. A prior entry for the same job means a concurrent or repeated
// failure already captured it.
func (p *Processor) moveToDeadLetter(ctx context.Context, job *domainsync.Job) {
	exists, err := p.deadLetters.ExistsForJob(ctx, job.ID)
	if err != nil {
		p.logger.Error("dead letter existence check failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return
	}
	if exists {
		return
	}

	entry := domainsync.NewDeadLetterEntry(job)
	if err := p.deadLetters.Create(ctx, entry); err != nil {
		p.logger.Error("failed to create dead letter entry",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
		return
	}
	p.logger.Error("job exhausted retries, moved to dead letter queue",
		zap.String("job_id", job.ID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.String("vendor_id", job.VendorID),
		zap.String("operation", job.Operation.String()),
		zap.Int("attempts", entry.AttemptCount),
		zap.String("reason", entry.FailureReason))
}

// ---------------------------------------------------------------------------
// Callbacks and reaping
// ---------------------------------------------------------------------------

// HandleCallback applies the agent's reported terminal outcome. Callbacks
// for jobs already in a terminal state are ignored so agent retries stay
// harmless.
func (p *Processor) HandleCallback(ctx context.Context, jobID uuid.UUID, success bool, erpReference, errorMessage string) error {
	job, err := p.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	if success {
		if err := job.Complete(erpReference); err != nil {
			return err
		}
		if err := p.jobs.Save(ctx, job); err != nil {
			return err
		}
		p.logger.Info("job completed by agent callback",
			zap.String("job_id", job.ID.String()),
			zap.String("erp_reference", erpReference))
		return nil
	}

	if job.Status != domainsync.JobStatusProcessing {
		return domainsync.ErrJobNotProcessing
	}
	p.failAttempt(ctx, job, "agent reported failure: "+errorMessage, "")
	return nil
}

// ReapStuck fails every job that was dispatched longer than the callback
// timeout ago and never heard back, re-entering the retry path
func (p *Processor) ReapStuck(ctx context.Context) (int, error) {
	deadline := timeNow().Add(-p.config.CallbackTimeout)
	stuck, err := p.jobs.FindStuckProcessing(ctx, deadline)
	if err != nil {
		return 0, err
	}
	for i := range stuck {
		job := stuck[i]
		p.logger.Warn("reaping job with no agent callback",
			zap.String("job_id", job.ID.String()),
			zap.String("vendor_id", job.VendorID),
			zap.Timep("started_at", job.StartedAt))
		p.failAttempt(ctx, &job, "no completion callback within timeout", "")
	}
	return len(stuck), nil
}
