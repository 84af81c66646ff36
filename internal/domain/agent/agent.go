package agent

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrAgentNotFound        = errors.New("agent: agent not found")
	ErrInvalidVendorID      = errors.New("agent: invalid vendor ID")
	ErrInvalidBaseURL       = errors.New("agent: invalid base URL")
	ErrInvalidAuthToken     = errors.New("agent: invalid auth token")
	ErrInvalidStatus        = errors.New("agent: invalid agent status")
	ErrAgentAlreadyDegraded = errors.New("agent: agent already degraded")
)

// ---------------------------------------------------------------------------
// AgentStatus
// ---------------------------------------------------------------------------

// AgentStatus represents the derived health status of a vendor agent
type AgentStatus string

const (
	// AgentStatusOnline indicates the agent sent a heartbeat recently
	AgentStatusOnline AgentStatus = "ONLINE"
	// AgentStatusDegraded indicates the heartbeat is overdue but not yet lost
	AgentStatusDegraded AgentStatus = "DEGRADED"
	// AgentStatusOffline indicates the heartbeat has been lost
	AgentStatusOffline AgentStatus = "OFFLINE"
)

// IsValid returns true if the status is valid
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentStatusOnline, AgentStatusDegraded, AgentStatusOffline:
		return true
	default:
		return false
	}
}

// String returns the string representation of AgentStatus
func (s AgentStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Agent Entity
// ---------------------------------------------------------------------------

// Agent represents one vendor-operated ERP agent integration.
// At most one Agent exists per vendor identifier; registration upserts.
type Agent struct {
	// ID is the unique identifier of this agent record
	ID uuid.UUID
	// VendorID is the vendor identifier (natural unique key)
	VendorID string
	// BaseURL is the agent's base URL for outbound sync calls
	BaseURL string
	// TokenHash is the bcrypt hash of the agent's auth token
	TokenHash string
	// Version is the agent's reported protocol/version string
	Version string
	// Status is the derived health status
	Status AgentStatus
	// LastHeartbeatAt is when the agent last sent a heartbeat
	LastHeartbeatAt time.Time
	// CreatedAt is when this record was created
	CreatedAt time.Time
	// UpdatedAt is when this record was last updated
	UpdatedAt time.Time
}

// NewAgent creates a new agent record from a registration call
func NewAgent(vendorID, baseURL, tokenHash, version string) (*Agent, error) {
	if strings.TrimSpace(vendorID) == "" {
		return nil, ErrInvalidVendorID
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, ErrInvalidBaseURL
	}
	if tokenHash == "" {
		return nil, ErrInvalidAuthToken
	}

	now := time.Now()
	return &Agent{
		ID:              uuid.New(),
		VendorID:        vendorID,
		BaseURL:         strings.TrimSuffix(baseURL, "/"),
		TokenHash:       tokenHash,
		Version:         version,
		Status:          AgentStatusOnline,
		LastHeartbeatAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// RecordHeartbeat refreshes the heartbeat timestamp and forces status online
func (a *Agent) RecordHeartbeat(version string) {
	now := time.Now()
	a.LastHeartbeatAt = now
	a.Status = AgentStatusOnline
	if version != "" {
		a.Version = version
	}
	a.UpdatedAt = now
}

// SetStatus applies a status transition (scheduler classification or admin override)
func (a *Agent) SetStatus(status AgentStatus) error {
	if !status.IsValid() {
		return ErrInvalidStatus
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	return nil
}

// HeartbeatAge returns how long ago the agent last sent a heartbeat
func (a *Agent) HeartbeatAge(now time.Time) time.Duration {
	return now.Sub(a.LastHeartbeatAt)
}

// IsReachable returns true if the agent should be included in reconciliation
func (a *Agent) IsReachable() bool {
	return a.Status == AgentStatusOnline || a.Status == AgentStatusDegraded
}
