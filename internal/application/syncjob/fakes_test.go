package syncjob

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erp/agentsync/internal/domain/agent"
	"github.com/erp/agentsync/internal/domain/catalog"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type inMemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domainsync.Job
}

func newInMemoryJobRepository() *inMemoryJobRepository {
	return &inMemoryJobRepository{jobs: make(map[uuid.UUID]domainsync.Job)}
}

func (r *inMemoryJobRepository) Save(ctx context.Context, job *domainsync.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *inMemoryJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domainsync.ErrJobNotFound
	}
	found := job
	return &found, nil
}

func (r *inMemoryJobRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]domainsync.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domainsync.Job
	for _, job := range r.jobs {
		if job.Status != domainsync.JobStatusPending {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}
		if !job.ExpiresAt.After(now) {
			continue
		}
		due = append(due, job)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *inMemoryJobRepository) FindStuckProcessing(ctx context.Context, startedBefore time.Time) ([]domainsync.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stuck []domainsync.Job
	for _, job := range r.jobs {
		if job.Status == domainsync.JobStatusProcessing && job.StartedAt != nil && job.StartedAt.Before(startedBefore) {
			stuck = append(stuck, job)
		}
	}
	return stuck, nil
}

func (r *inMemoryJobRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, job := range r.jobs {
		if job.Status.IsTerminal() && !job.ExpiresAt.After(now) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (r *inMemoryJobRepository) get(id uuid.UUID) domainsync.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id]
}

var _ domainsync.JobRepository = (*inMemoryJobRepository)(nil)

type inMemoryDeadLetterRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]domainsync.DeadLetterEntry
}

func newInMemoryDeadLetterRepository() *inMemoryDeadLetterRepository {
	return &inMemoryDeadLetterRepository{entries: make(map[uuid.UUID]domainsync.DeadLetterEntry)}
}

func (r *inMemoryDeadLetterRepository) Create(ctx context.Context, entry *domainsync.DeadLetterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = *entry
	return nil
}

func (r *inMemoryDeadLetterRepository) FindByID(ctx context.Context, id uuid.UUID) (*domainsync.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, domainsync.ErrEntryNotFound
	}
	found := entry
	return &found, nil
}

func (r *inMemoryDeadLetterRepository) FindUnresolved(ctx context.Context, filter domainsync.DeadLetterFilter) ([]domainsync.DeadLetterEntry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(unresolved) {
		return nil, total, nil
	}
	end := start + size
	if end > len(unresolved) {
		end = len(unresolved)
	}
	return unresolved[start:end], total, nil
}

func (r *inMemoryDeadLetterRepository) ExistsForJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.JobID != nil && *e.JobID == jobID {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryDeadLetterRepository) CountUnresolved(ctx context.Context, vendorID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *inMemoryDeadLetterRepository) Save(ctx context.Context, entry *domainsync.DeadLetterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.ID] = *entry
	return nil
}

func (r *inMemoryDeadLetterRepository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, e := range r.entries {
		if e.Resolved && e.ResolvedAt != nil && e.ResolvedAt.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (r *inMemoryDeadLetterRepository) all() []domainsync.DeadLetterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]domainsync.DeadLetterEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	return entries
}

var _ domainsync.DeadLetterRepository = (*inMemoryDeadLetterRepository)(nil)

type inMemoryAgentRepository struct {
	mu     sync.Mutex
	agents map[string]agent.Agent
}

func newInMemoryAgentRepository() *inMemoryAgentRepository {
	return &inMemoryAgentRepository{agents: make(map[string]agent.Agent)}
}

func (r *inMemoryAgentRepository) Save(ctx context.Context, a *agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.VendorID] = *a
	return nil
}

func (r *inMemoryAgentRepository) FindByVendor(ctx context.Context, vendorID string) (*agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[vendorID]
	if !ok {
		return nil, agent.ErrAgentNotFound
	}
	found := a
	return &found, nil
}

func (r *inMemoryAgentRepository) FindAll(ctx context.Context) ([]agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		all = append(all, a)
	}
	return all, nil
}

func (r *inMemoryAgentRepository) FindByStatuses(ctx context.Context, statuses []agent.AgentStatus) ([]agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []agent.Agent
	for _, a := range r.agents {
		for _, s := range statuses {
			if a.Status == s {
				matched = append(matched, a)
				break
			}
		}
	}
	return matched, nil
}

func (r *inMemoryAgentRepository) Delete(ctx context.Context, vendorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[vendorID]; !ok {
		return agent.ErrAgentNotFound
	}
	delete(r.agents, vendorID)
	return nil
}

var _ agent.Repository = (*inMemoryAgentRepository)(nil)

// ---------------------------------------------------------------------------
// Fake agent client
// ---------------------------------------------------------------------------

// fakeAgentClient scripts SendOrder outcomes and records every call
type fakeAgentClient struct {
	mu        sync.Mutex
	sendErr   error
	sendCalls int
}

func (c *fakeAgentClient) SendOrder(ctx context.Context, a *agent.Agent, operation domainsync.OperationKind, payload json.RawMessage, correlationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCalls++
	return c.sendErr
}

func (c *fakeAgentClient) GetCatalogChecksum(ctx context.Context, a *agent.Agent) (string, int, error) {
	return "", 0, nil
}

func (c *fakeAgentClient) GetRangeChecksum(ctx context.Context, a *agent.Agent, startSKU, endSKU string) (string, error) {
	return "", nil
}

func (c *fakeAgentClient) GetItemChecksums(ctx context.Context, a *agent.Agent, startSKU, endSKU string) (map[string]string, error) {
	return nil, nil
}

func (c *fakeAgentClient) GetItems(ctx context.Context, a *agent.Agent, skus []string) ([]catalog.Item, error) {
	return nil, nil
}

func (c *fakeAgentClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCalls
}

var _ domainsync.AgentClient = (*fakeAgentClient)(nil)
