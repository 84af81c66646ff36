package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/application"
	"github.com/erp/agentsync/internal/domain/agent"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
	"github.com/erp/agentsync/internal/infrastructure/config"
)

// TaskDeps bundles what the maintenance tasks drive
type TaskDeps struct {
	Services *application.Container
	Events   domainsync.ReconciliationEventRepository
	Alerter  domainsync.Alerter
	Logger   *zap.Logger
}

// BuildTasks assembles the periodic task list from the configuration
func BuildTasks(cfg config.SchedulerConfig, deps TaskDeps) []Task {
	return []Task{
		{
			Name:     "drift-detection",
			Interval: cfg.DriftDetectionInterval,
			Run: func(ctx context.Context) {
				reports := deps.Services.Reconcile.ReconcileAll(ctx)
				drifted := 0
				for _, r := range reports {
					if r.Drifted {
						drifted++
					}
				}
				deps.Logger.Info("drift detection sweep finished",
					zap.Int("agents", len(reports)),
					zap.Int("drifted", drifted))
			},
		},
		{
			Name:     "health-check",
			Interval: cfg.HealthCheckInterval,
			Run: func(ctx context.Context) {
				runHealthCheck(ctx, deps)
			},
		},
		{
			Name:     "dlq-check",
			Interval: cfg.DLQCheckInterval,
			Run: func(ctx context.Context) {
				runDLQCheck(ctx, deps)
			},
		},
		{
			Name:     "callback-reaper",
			Interval: cfg.CallbackReaperInterval,
			Run: func(ctx context.Context) {
				reaped, err := deps.Services.Processor.ReapStuck(ctx)
				if err != nil {
					deps.Logger.Error("callback reaper failed", zap.Error(err))
					return
				}
				if reaped > 0 {
					deps.Logger.Warn("jobs reaped for missing callbacks",
						zap.Int("reaped", reaped))
				}
			},
		},
		{
			Name:     "job-cleanup",
			Interval: cfg.JobCleanupInterval,
			Run: func(ctx context.Context) {
				removed, err := deps.Services.Jobs.CleanupExpired(ctx)
				if err != nil {
					deps.Logger.Error("job cleanup failed", zap.Error(err))
					return
				}
				if removed > 0 {
					deps.Logger.Info("expired jobs purged", zap.Int64("removed", removed))
				}
			},
		},
		{
			Name:     "event-archival",
			Interval: cfg.EventArchivalInterval,
			Run: func(ctx context.Context) {
				cutoff := time.Now().Add(-cfg.EventRetention)
				archived, err := deps.Events.ArchiveBefore(ctx, cutoff)
				if err != nil {
					deps.Logger.Error("reconciliation event archival failed", zap.Error(err))
					return
				}
				if archived > 0 {
					deps.Logger.Info("reconciliation events archived",
						zap.Int64("archived", archived))
				}
			},
		},
		{
			Name:     "dlq-cleanup",
			Interval: cfg.DLQCleanupInterval,
			Run: func(ctx context.Context) {
				retention := time.Duration(cfg.DLQRetentionDays) * 24 * time.Hour
				deps.Services.DLQ.Cleanup(ctx, retention)
			},
		},
	}
}

// runHealthCheck reclassifies agents with overdue heartbeats and alerts on
// agents that just went offline
func runHealthCheck(ctx context.Context, deps TaskDeps) {
	stale, err := deps.Services.Registry.ListStale(ctx, time.Now())
	if err != nil {
		deps.Logger.Error("health classification failed", zap.Error(err))
		return
	}
	for _, rc := range stale {
		if err := deps.Services.Registry.ApplyReclassification(ctx, rc); err != nil {
			deps.Logger.Error("failed to apply health reclassification",
				zap.String("vendor_id", rc.Agent.VendorID),
				zap.Error(err))
			continue
		}
		if rc.NewStatus == agent.AgentStatusOffline {
			deps.Alerter.Send(ctx, domainsync.AlertAgentOffline, "agent went offline", map[string]any{
				"vendor_id":         rc.Agent.VendorID,
				"last_heartbeat_at": rc.Agent.LastHeartbeatAt,
			})
		}
	}
}

// runDLQCheck alerts when unresolved dead letter entries are waiting
func runDLQCheck(ctx context.Context, deps TaskDeps) {
	count := deps.Services.DLQ.UnresolvedCount(ctx, "")
	if count > 0 {
		deps.Alerter.Send(ctx, domainsync.AlertDLQEntriesFound, "unresolved dead letter entries waiting", map[string]any{
			"count": count,
		})
	}
}
