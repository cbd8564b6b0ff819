package patient

import (
	"context"
	"errors"

	"github.com/ehr/maternity/internal/platform/fhir"
	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("patient not found")
	ErrValidation = errors.New("invalid patient")
	ErrConflict   = errors.New("patient already exists")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Search returns every patient whose birth date lies in bounds, ordered
	// by birth date.
	Search(ctx context.Context, bounds fhir.DateBounds) ([]*Patient, error)

	LookupSource
	// EnsureLookups inserts any missing seed rows.
	EnsureLookups(ctx context.Context) error
}
