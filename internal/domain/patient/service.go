package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/maternity/internal/platform/fhir"
	"github.com/ehr/maternity/internal/platform/telemetry"
	"github.com/ehr/maternity/pkg/pagination"
)

type Service struct {
	repo    PatientRepository
	lookups *LookupCache
	parser  *fhir.DateParser
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

type ServiceOption func(*Service)

func WithDateParser(p *fhir.DateParser) ServiceOption {
	return func(s *Service) { s.parser = p }
}

func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService wires the repository and lookup cache. Date values without an
// offset are read in UTC unless WithDateParser says otherwise.
func NewService(repo PatientRepository, lookups *LookupCache, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		lookups: lookups,
		parser:  fhir.NewDateParser(nil),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseBirthDates parses repeated birthdate values into one criteria.
func (s *Service) ParseBirthDates(raws []string) (fhir.DateCriteria, error) {
	criteria, err := s.parser.ParseAll(raws)
	if err != nil {
		s.metrics.IncDateParamError()
		return nil, err
	}
	for _, p := range criteria {
		s.metrics.IncDateParam(string(p.Prefix))
	}
	return criteria, nil
}

// Search runs the two-stage birth date search. Storage is asked only for
// the pushdown range; every candidate is then checked against the exact
// criteria before the page is cut. total counts the refined set.
func (s *Service) Search(ctx context.Context, birthdates []string, page pagination.Params) ([]*Patient, int, error) {
	criteria, err := s.ParseBirthDates(birthdates)
	if err != nil {
		return nil, 0, err
	}

	bounds := criteria.Bounds()
	candidates, err := s.repo.Search(ctx, bounds)
	if err != nil {
		return nil, 0, err
	}
	matched := fhir.FilterByDate(candidates, criteria, (*Patient).BirthInstant)
	s.metrics.ObserveDateSearch(!bounds.IsUnbounded(), len(candidates), len(matched))

	s.logger.Debug().
		Int("params", len(criteria)).
		Str("bounds", bounds.String()).
		Int("candidates", len(candidates)).
		Int("matches", len(matched)).
		Msg("birthdate search")

	lo, hi := page.Slice(len(matched))
	return matched[lo:hi], len(matched), nil
}

func (s *Service) SearchPatients(ctx context.Context, birthdates []string, page pagination.Params) ([]*PatientDTO, int, error) {
	patients, total, err := s.Search(ctx, birthdates, page)
	if err != nil {
		return nil, 0, err
	}
	l, err := s.lookups.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*PatientDTO, len(patients))
	for i, p := range patients {
		out[i] = p.ToDTO(l)
	}
	return out, total, nil
}

// SearchResources is Search rendered as FHIR Patient resources.
func (s *Service) SearchResources(ctx context.Context, birthdates []string, page pagination.Params) ([]map[string]interface{}, int, error) {
	patients, total, err := s.Search(ctx, birthdates, page)
	if err != nil {
		return nil, 0, err
	}
	l, err := s.lookups.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]map[string]interface{}, len(patients))
	for i, p := range patients {
		out[i] = p.ToFHIR(l)
	}
	return out, total, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*PatientDTO, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := s.lookups.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return p.ToDTO(l), nil
}

func (s *Service) GetResource(ctx context.Context, id uuid.UUID) (map[string]interface{}, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	l, err := s.lookups.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return p.ToFHIR(l), nil
}

func validate(d *PatientDTO) error {
	if d == nil {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if d.BirthDate.IsZero() {
		return fmt.Errorf("%w: birthDate is required", ErrValidation)
	}
	if d.Name != nil && strings.TrimSpace(d.Name.Family) == "" {
		return fmt.Errorf("%w: name.family is required", ErrValidation)
	}
	return nil
}

// CreatePatient stores d under a fresh id. A client supplied id is ignored.
func (s *Service) CreatePatient(ctx context.Context, d *PatientDTO) (*PatientDTO, error) {
	if err := validate(d); err != nil {
		return nil, err
	}
	l, err := s.lookups.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	p := FromDTO(d, l)
	p.ID = uuid.New()
	p.BirthDate = p.BirthDate.UTC()
	if p.Name != nil {
		if p.Name.ID == uuid.Nil {
			p.Name.ID = uuid.New()
		}
		p.Name.PatientID = p.ID
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p.ToDTO(l), nil
}

// UpdatePatient overwrites patient id with d. The body must carry the same id.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, d *PatientDTO) error {
	if err := validate(d); err != nil {
		return err
	}
	if d.ID == nil || *d.ID != id {
		return fmt.Errorf("%w: id in body does not match path", ErrValidation)
	}
	l, err := s.lookups.Snapshot(ctx)
	if err != nil {
		return err
	}

	p := FromDTO(d, l)
	p.BirthDate = p.BirthDate.UTC()
	if p.Name != nil {
		if p.Name.ID == uuid.Nil {
			p.Name.ID = uuid.New()
		}
		p.Name.PatientID = id
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
