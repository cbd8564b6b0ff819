package patient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ehr/maternity/internal/platform/fhir"
	"github.com/google/uuid"
)

// Patient maps to the patient table. Name is stored in patient_name.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      *HumanName `json:"name,omitempty"`
	GenderID  int        `db:"gender_id" json:"gender_id"`
	ActiveID  int        `db:"active_id" json:"active_id"`
	BirthDate time.Time  `db:"birth_date" json:"birth_date"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// HumanName maps to the patient_name table.
type HumanName struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Use       string    `db:"use" json:"use,omitempty"`
	Family    string    `db:"family" json:"family"`
	Given     []string  `db:"given" json:"given"`
}

// PatientDTO is the REST representation. Gender and active travel as codes.
type PatientDTO struct {
	ID        *uuid.UUID `json:"id"`
	Name      *NameDTO   `json:"name,omitempty"`
	BirthDate time.Time  `json:"birthDate"`
	Gender    *string    `json:"gender,omitempty"`
	Active    *bool      `json:"active,omitempty"`
}

// birthDateLayouts are the accepted birthDate forms: a FHIR date as
// rendered by ToFHIR, or a full instant.
var birthDateLayouts = []string{"2006-01-02", time.RFC3339Nano}

// UnmarshalJSON reads birthDate as either "2006-01-02" or RFC 3339. Date-only
// values are UTC midnight.
func (d *PatientDTO) UnmarshalJSON(data []byte) error {
	type plain PatientDTO
	aux := struct {
		*plain
		BirthDate *string `json:"birthDate"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.BirthDate == nil || strings.TrimSpace(*aux.BirthDate) == "" {
		d.BirthDate = time.Time{}
		return nil
	}
	raw := strings.TrimSpace(*aux.BirthDate)
	for _, layout := range birthDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			d.BirthDate = t
			return nil
		}
	}
	return fmt.Errorf("birthDate: %q is not a date or date-time", raw)
}

type NameDTO struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	PatientID *uuid.UUID `json:"patientId,omitempty"`
	Use       string     `json:"use,omitempty"`
	Family    string     `json:"family"`
	Given     []string   `json:"given"`
}

func (p *Patient) BirthInstant() time.Time { return p.BirthDate }

func (p *Patient) ToDTO(l Lookups) *PatientDTO {
	id := p.ID
	gender := l.GenderCode(p.GenderID)
	active := l.Active(p.ActiveID)
	dto := &PatientDTO{
		ID:        &id,
		BirthDate: p.BirthDate,
		Gender:    &gender,
		Active:    &active,
	}
	if p.Name != nil {
		nameID, patientID := p.Name.ID, p.Name.PatientID
		given := p.Name.Given
		if given == nil {
			given = []string{}
		}
		dto.Name = &NameDTO{
			ID:        &nameID,
			PatientID: &patientID,
			Use:       p.Name.Use,
			Family:    p.Name.Family,
			Given:     given,
		}
	}
	return dto
}

// FromDTO maps the DTO onto a new entity. Missing ids stay uuid.Nil.
func FromDTO(d *PatientDTO, l Lookups) *Patient {
	gender := ""
	if d.Gender != nil {
		gender = *d.Gender
	}
	p := &Patient{
		GenderID:  l.GenderID(gender),
		ActiveID:  l.ActiveID(d.Active),
		BirthDate: d.BirthDate,
	}
	if d.ID != nil {
		p.ID = *d.ID
	}
	if d.Name != nil {
		p.Name = &HumanName{
			Use:    d.Name.Use,
			Family: d.Name.Family,
			Given:  d.Name.Given,
		}
		if d.Name.ID != nil {
			p.Name.ID = *d.Name.ID
		}
		p.Name.PatientID = p.ID
	}
	return p
}

// ToFHIR renders the patient as a FHIR R4 Patient resource.
func (p *Patient) ToFHIR(l Lookups) map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Patient",
		"id":           p.ID.String(),
		"active":       l.Active(p.ActiveID),
		"gender":       l.GenderCode(p.GenderID),
		"birthDate":    p.BirthDate.Format("2006-01-02"),
		"meta":         fhir.Meta{LastUpdated: p.UpdatedAt},
	}
	if p.Name != nil {
		result["name"] = []fhir.HumanName{{
			Use:    p.Name.Use,
			Family: p.Name.Family,
			Given:  p.Name.Given,
		}}
	}
	return result
}
