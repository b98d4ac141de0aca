// Package repository provides durable CRUD over store records (spec §4.3).
// The canonical record shape lives in pkg/store; this package only persists
// and retrieves it.
package repository

import (
	"context"
	"time"

	"github.com/wisbric/urumi-provisioner/pkg/store"
)

// Patch describes a partial update to a store record. A nil field leaves the
// corresponding column untouched; UpdatedAt is always refreshed by the
// repository regardless of which fields are set.
type Patch struct {
	Status                 *store.Status
	Phase                  *store.Phase
	ClearPhase             bool
	DBReady                *bool
	AppReady               *bool
	URL                    *string
	AdminURL               *string
	ErrorMessage           *string
	ErrorPhase             *store.Phase
	ReadyAt                *time.Time
	DeletedAt              *time.Time
	DeadlineAt             *time.Time
	ClearDeadline          bool
	ProvisioningDurationMs *int64
}

// Repository is the durable store of record for provisioning state. The
// orchestrator is the only component that calls Create/Update/SoftDelete; the
// admission handlers only call the read operations (spec §3, "lifecycle ownership").
type Repository interface {
	Create(ctx context.Context, s *store.Store) error
	Update(ctx context.Context, id string, patch Patch) (*store.Store, error)
	FindByID(ctx context.Context, id string) (*store.Store, error)
	// FindAll excludes deleted records and orders by createdAt desc.
	FindAll(ctx context.Context) ([]*store.Store, error)
	SoftDelete(ctx context.Context, id string) error
	// CountActive counts records whose status is not in {failed, deleted}.
	CountActive(ctx context.Context) (int, error)
	// FindStaleProvisioning returns provisioning records whose deadline has
	// already passed — input to the stale-provisioning reaper.
	FindStaleProvisioning(ctx context.Context, asOf time.Time) ([]*store.Store, error)
	HealthPing(ctx context.Context) error
}

// ErrNotFound is returned by FindByID and Update when no record matches.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store record not found" }
