// Package reconcile implements drift detection and conflict resolution
// between the local catalog mirror and agent-side catalogs.
package reconcile

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/agent"
	"github.com/erp/agentsync/internal/domain/catalog"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
	"github.com/erp/agentsync/internal/infrastructure/breaker"
)

// operationFamily is the circuit breaker family for reconciliation calls
const operationFamily = "catalog"

// Report is the outcome of one reconciliation run
type Report struct {
	// VendorID identifies the reconciled agent
	VendorID string
	// Drifted is true when the catalog checksums differed
	Drifted bool
	// LocalChecksum is the locally computed catalog checksum
	LocalChecksum string
	// AgentChecksum is the checksum reported by the agent
	AgentChecksum string
	// ItemCount is the number of local items covered
	ItemCount int
	// DriftedSKUs lists the SKUs found to differ
	DriftedSKUs []string
	// ConflictsFound is the number of drifted items discovered
	ConflictsFound int
	// ConflictsResolved is the number of drifted items overwritten locally
	ConflictsResolved int
	// Duration is how long the run took
	Duration time.Duration
}

// Service runs catalog reconciliation against agents
type Service struct {
	agents   agent.Repository
	items    catalog.ItemRepository
	events   domainsync.ReconciliationEventRepository
	client   domainsync.AgentClient
	breakers *breaker.Manager
	alerter  domainsync.Alerter
	leafSize int
	logger   *zap.Logger
}

// NewService creates a new reconciliation service
func NewService(
	agents agent.Repository,
	items catalog.ItemRepository,
	events domainsync.ReconciliationEventRepository,
	client domainsync.AgentClient,
	breakers *breaker.Manager,
	alerter domainsync.Alerter,
	leafSize int,
	logger *zap.Logger,
) *Service {
	return &Service{
		agents:   agents,
		items:    items,
		events:   events,
		client:   client,
		breakers: breakers,
		alerter:  alerter,
		leafSize: leafSize,
		logger:   logger,
	}
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// ReconcileAll reconciles every reachable agent. Per-agent failures are
// logged and do not abort the sweep.
func (s *Service) ReconcileAll(ctx context.Context) []Report {
	agents, err := s.agents.FindByStatuses(ctx, []agent.AgentStatus{
		agent.AgentStatusOnline,
		agent.AgentStatusDegraded,
	})
	if err != nil {
		s.logger.Error("failed to list agents for reconciliation", zap.Error(err))
		return nil
	}

	reports := make([]Report, 0, len(agents))
	for i := range agents {
		report, err := s.Reconcile(ctx, agents[i].VendorID)
		if err != nil {
			s.logger.Error("reconciliation failed",
				zap.String("vendor_id", agents[i].VendorID),
				zap.Error(err))
			continue
		}
		reports = append(reports, *report)
	}
	return reports
}

// Reconcile compares the local catalog mirror with the agent's catalog and
// overwrites drifted local items with the agent's version. The agent is the
// source of truth for catalog data.
func (s *Service) Reconcile(ctx context.Context, vendorID string) (*Report, error) {
	started := time.Now()

	a, err := s.agents.FindByVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if !a.IsReachable() {
		return nil, agent.ErrAgentNotFound
	}

	localItems, err := s.items.FindAll(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	localChecksum := checksumOf(localItems)

	var agentChecksum string
	var agentCount int
	err = s.callAgent(ctx, vendorID, func(callCtx context.Context) error {
		var callErr error
		agentChecksum, agentCount, callErr = s.client.GetCatalogChecksum(callCtx, a)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		VendorID:      vendorID,
		LocalChecksum: localChecksum,
		AgentChecksum: agentChecksum,
		ItemCount:     len(localItems),
	}

	if localChecksum == agentChecksum {
		report.Duration = time.Since(started)
		s.appendEvent(ctx, vendorID, domainsync.EventFullChecksum, domainsync.ReconciliationSummary{
			LocalChecksum: localChecksum,
			AgentChecksum: agentChecksum,
			ItemCount:     len(localItems),
		}, report.Duration)
		return report, nil
	}

	report.Drifted = true
	s.logger.Warn("catalog drift detected",
		zap.String("vendor_id", vendorID),
		zap.String("local_checksum", localChecksum),
		zap.String("agent_checksum", agentChecksum),
		zap.Int("local_items", len(localItems)),
		zap.Int("agent_items", agentCount))
	s.appendEvent(ctx, vendorID, domainsync.EventDriftDetected, domainsync.ReconciliationSummary{
		LocalChecksum: localChecksum,
		AgentChecksum: agentChecksum,
		ItemCount:     len(localItems),
	}, time.Since(started))

	drifted, err := s.narrowDrift(ctx, a, localItems)
	if err != nil {
		return nil, err
	}
	report.DriftedSKUs = drifted
	report.ConflictsFound = len(drifted)

	resolved, err := s.resolveConflicts(ctx, a, drifted)
	if err != nil {
		return nil, err
	}
	report.ConflictsResolved = resolved
	report.Duration = time.Since(started)

	s.appendEvent(ctx, vendorID, domainsync.EventDriftResolved, domainsync.ReconciliationSummary{
		LocalChecksum:     localChecksum,
		AgentChecksum:     agentChecksum,
		ItemCount:         len(localItems),
		DriftedSKUs:       drifted,
		ConflictsFound:    report.ConflictsFound,
		ConflictsResolved: report.ConflictsResolved,
	}, report.Duration)

	s.alerter.Send(ctx, domainsync.AlertReconciliationDrift, "catalog drift detected and resolved", map[string]any{
		"vendor_id":          vendorID,
		"conflicts_found":    report.ConflictsFound,
		"conflicts_resolved": report.ConflictsResolved,
	})
	return report, nil
}

// ---------------------------------------------------------------------------
// Drift narrowing
// ---------------------------------------------------------------------------

// task is one pending range comparison on the work stack
type task struct {
	items []catalog.Item
	start string
	end   string
}

// narrowDrift binary-searches the drifted SKUs using an explicit work stack.
// A range whose checksums agree is pruned; a disagreeing range is split at
// its median SKU until it is small enough to compare item by item.
func (s *Service) narrowDrift(ctx context.Context, a *agent.Agent, localItems []catalog.Item) ([]string, error) {
	driftedSet := make(map[string]struct{})

	// the root range is unbounded on both sides so agent-only SKUs outside
	// the local SKU span are still covered
	stack := []task{{items: localItems, start: "", end: ""}}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(t.items) <= s.leafSize {
			if err := s.compareLeaf(ctx, a, t, driftedSet); err != nil {
				return nil, err
			}
			continue
		}

		localChecksum := checksumOf(t.items)
		var agentChecksum string
		err := s.callAgent(ctx, a.VendorID, func(callCtx context.Context) error {
			var callErr error
			agentChecksum, callErr = s.client.GetRangeChecksum(callCtx, a, t.start, t.end)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		if localChecksum == agentChecksum {
			continue
		}

		mid := len(t.items) / 2
		midSKU := t.items[mid].SKU
		stack = append(stack,
			task{items: t.items[:mid], start: t.start, end: midSKU},
			task{items: t.items[mid:], start: midSKU, end: t.end},
		)
	}

	drifted := make([]string, 0, len(driftedSet))
	for sku := range driftedSet {
		drifted = append(drifted, sku)
	}
	sort.Strings(drifted)
	return drifted, nil
}

// compareLeaf fetches the agent's per-item hashes for a small range and
// collects every SKU that differs, exists only locally, or exists only on
// the agent
func (s *Service) compareLeaf(ctx context.Context, a *agent.Agent, t task, driftedSet map[string]struct{}) error {
	var agentHashes map[string]string
	err := s.callAgent(ctx, a.VendorID, func(callCtx context.Context) error {
		var callErr error
		agentHashes, callErr = s.client.GetItemChecksums(callCtx, a, t.start, t.end)
		return callErr
	})
	if err != nil {
		return err
	}

	localHashes := make(map[string]string, len(t.items))
	for _, item := range t.items {
		localHashes[item.SKU] = item.ContentHash
	}
	for sku, hash := range agentHashes {
		if localHashes[sku] != hash {
			driftedSet[sku] = struct{}{}
		}
	}
	for sku := range localHashes {
		if _, ok := agentHashes[sku]; !ok {
			driftedSet[sku] = struct{}{}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conflict resolution
// ---------------------------------------------------------------------------

// resolveConflicts fetches the agent's records for the drifted SKUs and
// overwrites the local rows. Each item is upserted independently so one
// failure does not abort the batch. Drifted SKUs absent from the agent's
// response no longer exist remotely and are deleted locally.
func (s *Service) resolveConflicts(ctx context.Context, a *agent.Agent, skus []string) (int, error) {
	if len(skus) == 0 {
		return 0, nil
	}

	var agentItems []catalog.Item
	err := s.callAgent(ctx, a.VendorID, func(callCtx context.Context) error {
		var callErr error
		agentItems, callErr = s.client.GetItems(callCtx, a, skus)
		return callErr
	})
	if err != nil {
		return 0, err
	}

	existing, err := s.items.FindBySKUs(ctx, a.VendorID, skus)
	if err != nil {
		return 0, err
	}

	resolved := 0
	now := time.Now()
	remote := make(map[string]struct{}, len(agentItems))
	for i := range agentItems {
		remote[agentItems[i].SKU] = struct{}{}
		if prev, ok := existing[agentItems[i].SKU]; ok {
			agentItems[i].ID = prev.ID
			agentItems[i].CreatedAt = prev.CreatedAt
		} else {
			agentItems[i].CreatedAt = now
		}
		agentItems[i].UpdatedAt = now

		if err := s.items.UpsertBatch(ctx, agentItems[i:i+1]); err != nil {
			s.logger.Error("failed to apply agent item",
				zap.String("vendor_id", a.VendorID),
				zap.String("sku", agentItems[i].SKU),
				zap.Error(err))
			continue
		}
		resolved++
	}

	// local-only SKUs: the agent confirmed absence by omitting them from
	// the fetch, so the local rows are removed to converge
	localOnly := make([]string, 0)
	for _, sku := range skus {
		if _, ok := remote[sku]; ok {
			continue
		}
		if _, ok := existing[sku]; ok {
			localOnly = append(localOnly, sku)
		}
	}
	if len(localOnly) > 0 {
		deleted, err := s.items.DeleteBySKUs(ctx, a.VendorID, localOnly)
		if err != nil {
			s.logger.Error("failed to delete local-only items",
				zap.String("vendor_id", a.VendorID),
				zap.Strings("skus", localOnly),
				zap.Error(err))
		} else {
			resolved += int(deleted)
			s.logger.Info("removed items no longer present on agent",
				zap.String("vendor_id", a.VendorID),
				zap.Strings("skus", localOnly))
		}
	}
	return resolved, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// callAgent wraps one agent call in the catalog circuit breaker
func (s *Service) callAgent(ctx context.Context, vendorID string, fn func(ctx context.Context) error) error {
	return s.breakers.Execute(ctx, vendorID, operationFamily, fn)
}

// appendEvent records an audit event; persistence failures are logged, not
// propagated
func (s *Service) appendEvent(ctx context.Context, vendorID string, eventType domainsync.ReconciliationEventType, summary domainsync.ReconciliationSummary, duration time.Duration) {
	event := domainsync.NewReconciliationEvent(vendorID, eventType, summary, duration)
	if err := s.events.Append(ctx, event); err != nil {
		s.logger.Error("failed to append reconciliation event",
			zap.String("vendor_id", vendorID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// History returns the recent reconciliation events of a vendor
func (s *Service) History(ctx context.Context, vendorID string, limit int) ([]domainsync.ReconciliationEvent, error) {
	return s.events.FindByVendor(ctx, vendorID, limit)
}

func checksumOf(items []catalog.Item) string {
	pairs := make([]domainsync.ChecksumPair, 0, len(items))
	for _, item := range items {
		pairs = append(pairs, domainsync.ChecksumPair{SKU: item.SKU, ContentHash: item.ContentHash})
	}
	return domainsync.ComputeCatalogChecksum(pairs)
}
