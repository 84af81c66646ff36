// Package application wires the service layer together. The API layer in
// front of this module consumes the container; the core exposes plain
// method calls only.
package application

import (
	"github.com/erp/agentsync/internal/application/dlq"
	"github.com/erp/agentsync/internal/application/ingest"
	"github.com/erp/agentsync/internal/application/mapping"
	"github.com/erp/agentsync/internal/application/reconcile"
	"github.com/erp/agentsync/internal/application/registry"
	"github.com/erp/agentsync/internal/application/syncjob"
)

// Container holds the fully wired application services
type Container struct {
	// Registry manages agent registration, heartbeats and health
	Registry *registry.Service
	// Mapping resolves and administers vendor code translations
	Mapping *mapping.Service
	// Ingest accepts catalog data pushed by agents
	Ingest *ingest.Service
	// Reconcile runs drift detection and conflict resolution
	Reconcile *reconcile.Service
	// Jobs enqueues and queries outbound sync jobs
	Jobs *syncjob.Service
	// Processor dispatches jobs and handles agent callbacks
	Processor *syncjob.Processor
	// DLQ inspects and recovers dead-lettered jobs
	DLQ *dlq.Service
}
