package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/maternity/internal/platform/db"
	"github.com/ehr/maternity/internal/platform/fhir"
)

// PGConn is satisfied by *pgxpool.Pool.
type PGConn interface {
	db.Querier
	db.TxBeginner
}

type patientRepoPG struct {
	conn PGConn
}

func NewPatientRepo(conn PGConn) PatientRepository {
	return &patientRepoPG{conn: conn}
}

const (
	patientFrom = `patient p LEFT JOIN patient_name n ON n.patient_id = p.id`
	patientCols = `p.id, p.gender_id, p.active_id, p.birth_date, p.created_at, p.updated_at,
	n.id, n.use, n.family, n.given`
)

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p      Patient
		nameID *uuid.UUID
		use    *string
		family *string
		given  []string
	)
	if err := row.Scan(&p.ID, &p.GenderID, &p.ActiveID, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt,
		&nameID, &use, &family, &given); err != nil {
		return nil, err
	}
	if nameID != nil {
		p.Name = &HumanName{ID: *nameID, PatientID: p.ID, Given: given}
		if use != nil {
			p.Name.Use = *use
		}
		if family != nil {
			p.Name.Family = *family
		}
	}
	return &p, nil
}

func givenOrEmpty(given []string) []string {
	if given == nil {
		return []string{}
	}
	return given
}

func upsertName(ctx context.Context, tx pgx.Tx, n *HumanName) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO patient_name (id, patient_id, use, family, given)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id) DO UPDATE SET use = EXCLUDED.use, family = EXCLUDED.family, given = EXCLUDED.given`,
		n.ID, n.PatientID, n.Use, n.Family, givenOrEmpty(n.Given))
	return err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO patient (id, gender_id, active_id, birth_date)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at`,
			p.ID, p.GenderID, p.ActiveID, p.BirthDate,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}
		if p.Name != nil {
			return upsertName(ctx, tx, p.Name)
		}
		return nil
	})
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("patient create: %w", ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn.QueryRow(ctx, `SELECT `+patientCols+` FROM `+patientFrom+` WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient get: %w", err)
	}
	return p, nil
}

// Update replaces the patient row and reconciles its name: a nil name
// removes the stored one, otherwise it is inserted or overwritten.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE patient SET gender_id = $2, active_id = $3, birth_date = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING created_at, updated_at`,
			p.ID, p.GenderID, p.ActiveID, p.BirthDate,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("patient update: %w", err)
		}

		if p.Name == nil {
			if _, err := tx.Exec(ctx, `DELETE FROM patient_name WHERE patient_id = $1`, p.ID); err != nil {
				return fmt.Errorf("patient update: remove name: %w", err)
			}
			return nil
		}
		if err := upsertName(ctx, tx, p.Name); err != nil {
			return fmt.Errorf("patient update: save name: %w", err)
		}
		return nil
	})
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// storedBounds converts bounds to UTC wall clock, matching how birth_date
// is written to the zone-less column.
func storedBounds(b fhir.DateBounds) fhir.DateBounds {
	out := fhir.DateBounds{}
	if b.Lower != nil {
		t := b.Lower.UTC()
		out.Lower = &t
	}
	if b.Upper != nil {
		t := b.Upper.UTC()
		out.Upper = &t
	}
	return out
}

func (r *patientRepoPG) Search(ctx context.Context, bounds fhir.DateBounds) ([]*Patient, error) {
	qb := fhir.NewSearchQuery(patientFrom, patientCols)
	qb.AddDateBounds("p.birth_date", storedBounds(bounds))
	qb.OrderBy("p.birth_date, p.id")

	rows, err := r.conn.Query(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, fmt.Errorf("patient search: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("patient search: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patient search: %w", err)
	}
	return patients, nil
}

func (r *patientRepoPG) listLookups(ctx context.Context, table string) ([]Lookup, error) {
	rows, err := r.conn.Query(ctx, `SELECT id, code FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []Lookup
	for rows.Next() {
		var l Lookup
		if err := rows.Scan(&l.ID, &l.Code); err != nil {
			return nil, fmt.Errorf("list %s: %w", table, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *patientRepoPG) ListGenders(ctx context.Context) ([]Lookup, error) {
	return r.listLookups(ctx, "gender_lookup")
}

func (r *patientRepoPG) ListActives(ctx context.Context) ([]Lookup, error) {
	return r.listLookups(ctx, "active_lookup")
}

func (r *patientRepoPG) EnsureLookups(ctx context.Context) error {
	return db.WithTx(ctx, r.conn, func(tx pgx.Tx) error {
		for table, rows := range map[string][]Lookup{"gender_lookup": SeedGenders, "active_lookup": SeedActives} {
			for _, l := range rows {
				if _, err := tx.Exec(ctx, `INSERT INTO `+table+` (id, code) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, l.ID, l.Code); err != nil {
					return fmt.Errorf("seed %s: %w", table, err)
				}
			}
		}
		return nil
	})
}
