package agent

import "context"

// Repository defines the interface for persisting agent records
type Repository interface {
	// Save creates or updates an agent, upserting on vendor ID
	Save(ctx context.Context, a *Agent) error

	// FindByVendor finds an agent by vendor identifier
	FindByVendor(ctx context.Context, vendorID string) (*Agent, error)

	// FindAll returns all registered agents
	FindAll(ctx context.Context) ([]Agent, error)

	// FindByStatuses returns agents whose status is one of the given values
	FindByStatuses(ctx context.Context, statuses []AgentStatus) ([]Agent, error)

	// Delete hard-deletes an agent (explicit deregistration only)
	Delete(ctx context.Context, vendorID string) error
}
