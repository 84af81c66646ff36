package mapping

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrMappingNotFound      = errors.New("mapping: mapping not found")
	ErrMappingAlreadyExists = errors.New("mapping: mapping already exists")
	ErrInvalidVendorID      = errors.New("mapping: invalid vendor ID")
	ErrInvalidType          = errors.New("mapping: invalid mapping type")
	ErrInvalidExternalCode  = errors.New("mapping: invalid external code")
	ErrInvalidCanonicalCode = errors.New("mapping: invalid canonical code")
)

// ---------------------------------------------------------------------------
// Type
// ---------------------------------------------------------------------------

// Type classifies what a vendor code translates to
type Type string

const (
	// TypeUnit maps vendor unit-of-measure codes
	TypeUnit Type = "unit"
	// TypeVAT maps vendor VAT rate codes
	TypeVAT Type = "vat"
	// TypeFamily maps vendor product family codes
	TypeFamily Type = "family"
	// TypeSubfamily maps vendor product subfamily codes
	TypeSubfamily Type = "subfamily"
)

// IsValid returns true if the mapping type is valid
func (t Type) IsValid() bool {
	switch t {
	case TypeUnit, TypeVAT, TypeFamily, TypeSubfamily:
		return true
	default:
		return false
	}
}

// String returns the string representation of Type
func (t Type) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// Entry Entity
// ---------------------------------------------------------------------------

// Entry translates one vendor-specific code to a canonical code. Unique per
// (vendor, type, external code); soft-deleted via the active flag.
type Entry struct {
	// ID is the unique identifier of this entry
	ID uuid.UUID
	// VendorID scopes the translation to one vendor agent
	VendorID string
	// Type classifies the translation
	Type Type
	// ExternalCode is the vendor-specific code
	ExternalCode string
	// CanonicalCode is the canonical code
	CanonicalCode string
	// CanonicalLabel is the human-readable canonical label
	CanonicalLabel string
	// Active is false once the entry is soft-deleted
	Active bool
	// CreatedAt is when this entry was created
	CreatedAt time.Time
	// UpdatedAt is when this entry was last updated
	UpdatedAt time.Time
}

// NewEntry creates a new mapping entry
func NewEntry(vendorID string, mappingType Type, externalCode, canonicalCode, canonicalLabel string) (*Entry, error) {
	if vendorID == "" {
		return nil, ErrInvalidVendorID
	}
	if !mappingType.IsValid() {
		return nil, ErrInvalidType
	}
	if externalCode == "" {
		return nil, ErrInvalidExternalCode
	}
	if canonicalCode == "" {
		return nil, ErrInvalidCanonicalCode
	}

	now := time.Now()
	return &Entry{
		ID:             uuid.New(),
		VendorID:       vendorID,
		Type:           mappingType,
		ExternalCode:   externalCode,
		CanonicalCode:  canonicalCode,
		CanonicalLabel: canonicalLabel,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Deactivate soft-deletes the entry
func (e *Entry) Deactivate() {
	e.Active = false
	e.UpdatedAt = time.Now()
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Resolution is the canonical translation of a vendor code
type Resolution struct {
	// CanonicalCode is the canonical code
	CanonicalCode string `json:"canonicalCode"`
	// CanonicalLabel is the human-readable canonical label
	CanonicalLabel string `json:"canonicalLabel"`
}

// Resolver translates vendor codes to canonical codes. The ingest pipeline
// depends on this interface; the application service backs it with the
// translation cache.
type Resolver interface {
	// Resolve returns the canonical translation, or nil if no active
	// mapping exists
	Resolve(ctx context.Context, vendorID string, mappingType Type, externalCode string) (*Resolution, error)
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// Repository defines the interface for persisting mapping entries
type Repository interface {
	// FindActive finds the active entry for (vendor, type, external code)
	FindActive(ctx context.Context, vendorID string, mappingType Type, externalCode string) (*Entry, error)

	// FindByID finds an entry by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// FindByVendor lists entries for a vendor, optionally by type
	FindByVendor(ctx context.Context, vendorID string, mappingType *Type) ([]Entry, error)

	// Save creates or updates an entry, upserting on the natural key
	Save(ctx context.Context, entry *Entry) error

	// SaveBatch creates or updates multiple entries
	SaveBatch(ctx context.Context, entries []*Entry) error
}
