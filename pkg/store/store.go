// Package store defines the store record's shape, validation rules, and the
// state machine that constrains every transition the orchestrator performs
// on it (spec §3, §4.8).
package store

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status is one of the record's lifecycle states.
type Status string

const (
	StatusPending       Status = "pending"
	StatusProvisioning  Status = "provisioning"
	StatusReady         Status = "ready"
	StatusFailed        Status = "failed"
	StatusDeleting      Status = "deleting"
	StatusDeleted       Status = "deleted"
)

// Phase is set only while Status == StatusProvisioning.
type Phase string

const (
	PhaseNamespace   Phase = "namespace"
	PhaseDatabase    Phase = "database"
	PhaseApplication Phase = "application"
	PhaseValidation  Phase = "validation"
)

// Engine identifies the e-commerce platform a store runs. Medusa is
// recognized but reserved — admission rejects it (spec §4.8).
type Engine string

const (
	EngineWooCommerce Engine = "woocommerce"
	EngineMedusa      Engine = "medusa"
)

// nameRE matches the spec's name shape: 3-50 lowercase alphanumerics and hyphens.
var nameRE = regexp.MustCompile(`^[a-z0-9-]{3,50}$`)

// ValidName reports whether name satisfies the spec's shape constraint.
func ValidName(name string) bool {
	return nameRE.MatchString(name)
}

// Store is the durable entity the repository persists (spec §3).
type Store struct {
	ID        string
	Name      string
	Namespace string
	Engine    Engine

	Status Status
	Phase  *Phase

	URL      *string
	AdminURL *string

	DBReady  bool
	AppReady bool

	ErrorMessage *string
	ErrorPhase   *Phase

	CreatedAt time.Time
	UpdatedAt time.Time
	ReadyAt   *time.Time
	DeletedAt *time.Time

	// DeadlineAt bounds how long a provisioning run may occupy this record;
	// the reaper uses it to reclaim crashed runs (SPEC_FULL supplement).
	DeadlineAt *time.Time

	ProvisioningDurationMs *int64
}

// IsActive reports whether the record counts toward the active-store cap:
// any status other than failed or deleted (spec §4.8, GLOSSARY).
func (s *Store) IsActive() bool {
	return s.Status != StatusFailed && s.Status != StatusDeleted
}

// NewID generates an 8-character, URL-safe, lowercase opaque identifier.
func NewID() (string, error) {
	buf := make([]byte, 5) // 5 bytes -> 8 base32 chars
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating store id: %w", err)
	}
	id := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
	return id[:8], nil
}

// NamespaceFor derives the namespace name for a store id. This is never
// recomputed after creation — the namespace field is set once and frozen.
func NamespaceFor(id string) string {
	return "store-" + id
}

// transitions enumerates every allowed Status -> Status edge (spec §4.8's table).
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProvisioning: true,
		StatusFailed:       true,
		StatusDeleting:     true,
	},
	StatusProvisioning: {
		StatusReady:  true,
		StatusFailed: true,
	},
	StatusReady: {
		StatusDeleting: true,
	},
	StatusFailed: {
		StatusProvisioning: true, // retry
		StatusDeleting:     true,
	},
	StatusDeleting: {
		StatusFailed:  true,
		StatusDeleted: true,
	},
	StatusDeleted: {},
}

// CanTransition reports whether moving from -> to is permitted by the state
// machine. Implementations must call this rather than comparing strings
// loosely (spec §9).
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
