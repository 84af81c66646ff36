// Package registry implements agent registration, heartbeats and health
// classification.
package registry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erp/agentsync/internal/domain/agent"
)

// ErrTokenMismatch indicates the presented auth token does not match the
// registered one
var ErrTokenMismatch = errors.New("registry: auth token mismatch")

// Thresholds holds the heartbeat ages that reclassify an agent
type Thresholds struct {
	// DegradedAfter is the heartbeat age beyond which an agent is degraded
	DegradedAfter time.Duration
	// OfflineAfter is the heartbeat age beyond which an agent is offline
	OfflineAfter time.Duration
}

// Service manages the agent registry
type Service struct {
	repo       agent.Repository
	thresholds Thresholds
	logger     *zap.Logger
}

// NewService creates a new registry service
func NewService(repo agent.Repository, thresholds Thresholds, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Register registers an agent or refreshes an existing registration.
// Registration upserts on the vendor identifier: the same vendor registering
// again replaces its base URL, token and version and resets the heartbeat.
func (s *Service) Register(ctx context.Context, vendorID, baseURL, authToken, version string) (*agent.Agent, error) {
	if authToken == "" {
		return nil, agent.ErrInvalidAuthToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(authToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a, err := agent.NewAgent(vendorID, baseURL, string(hash), version)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("agent registered",
		zap.String("vendor_id", a.VendorID),
		zap.String("base_url", a.BaseURL),
		zap.String("version", a.Version))
	return a, nil
}

// Heartbeat records an agent heartbeat, forcing the agent back online
func (s *Service) Heartbeat(ctx context.Context, vendorID, version string) (*agent.Agent, error) {
	a, err := s.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	a.RecordHeartbeat(version)
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// VerifyToken checks a presented auth token against the registered hash
func (s *Service) VerifyToken(ctx context.Context, vendorID, authToken string) error {
	a, err := s.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.TokenHash), []byte(authToken)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// GetAgent returns one agent by vendor identifier
func (s *Service) GetAgent(ctx context.Context, vendorID string) (*agent.Agent, error) {
	return s.repo.FindByVendor(ctx, vendorID)
}

// ListAgents returns all registered agents
func (s *Service) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	return s.repo.FindAll(ctx)
}

// ListReachable returns agents eligible for reconciliation and dispatch
func (s *Service) ListReachable(ctx context.Context) ([]agent.Agent, error) {
	return s.repo.FindByStatuses(ctx, []agent.AgentStatus{
		agent.AgentStatusOnline,
		agent.AgentStatusDegraded,
	})
}

// Reclassification is one pending health status change
type Reclassification struct {
	Agent     agent.Agent
	NewStatus agent.AgentStatus
}

// ListStale computes the agents whose heartbeat age crossed a threshold and
// whose stored status lags behind. Pure read; ApplyReclassification persists
// the changes.
func (s *Service) ListStale(ctx context.Context, now time.Time) ([]Reclassification, error) {
	agents, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	var stale []Reclassification
	for _, a := range agents {
		age := a.HeartbeatAge(now)
		var target agent.AgentStatus
		switch {
		case age >= s.thresholds.OfflineAfter:
			target = agent.AgentStatusOffline
		case age >= s.thresholds.DegradedAfter:
			target = agent.AgentStatusDegraded
		default:
			continue
		}
		if a.Status == target {
			continue
		}
		// Never promote: a degraded threshold crossing must not pull an
		// offline agent back up.
		if a.Status == agent.AgentStatusOffline && target == agent.AgentStatusDegraded {
			continue
		}
		stale = append(stale, Reclassification{Agent: a, NewStatus: target})
	}
	return stale, nil
}

// ApplyReclassification persists one health status change
func (s *Service) ApplyReclassification(ctx context.Context, rc Reclassification) error {
	a, err := s.repo.FindByVendor(ctx, rc.Agent.VendorID)
	if err != nil {
		return err
	}
	// A heartbeat may have arrived since classification; skip if the stored
	// heartbeat moved.
	if a.LastHeartbeatAt.After(rc.Agent.LastHeartbeatAt) {
		return nil
	}
	if err := a.SetStatus(rc.NewStatus); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return err
	}
	s.logger.Warn("agent health reclassified",
		zap.String("vendor_id", a.VendorID),
		zap.String("status", a.Status.String()),
		zap.Duration("heartbeat_age", a.HeartbeatAge(time.Now())))
	return nil
}

// SetStatus applies an administrative status override
func (s *Service) SetStatus(ctx context.Context, vendorID string, status agent.AgentStatus) (*agent.Agent, error) {
	a, err := s.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if err := a.SetStatus(status); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Deregister removes an agent. Historic jobs and dead letter entries are
// kept for audit.
func (s *Service) Deregister(ctx context.Context, vendorID string) error {
	if err := s.repo.Delete(ctx, vendorID); err != nil {
		return err
	}
	s.logger.Info("agent deregistered", zap.String("vendor_id", vendorID))
	return nil
}
