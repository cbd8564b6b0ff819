package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/maternity/internal/domain/patient"
)

var (
	familyNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez",
	}
	givenNames = []string{
		"James", "Mary", "John", "Patricia", "Robert", "Jennifer", "Michael", "Linda", "William", "Elizabeth",
		"David", "Barbara", "Richard", "Susan", "Joseph", "Jessica", "Thomas", "Sarah", "Charles", "Karen",
	}
	seedGenders = []string{"male", "female", "other"}
)

const (
	seedFirstYear = 1920
	seedLastYear  = 2020
)

// randomPatient builds a patient with a birth date at midnight UTC between
// seedFirstYear and seedLastYear. About nine in ten are active.
func randomPatient(rnd *rand.Rand) *patient.PatientDTO {
	given := []string{givenNames[rnd.Intn(len(givenNames))]}
	if rnd.Float64() < 0.3 {
		given = append(given, givenNames[rnd.Intn(len(givenNames))])
	}

	year := seedFirstYear + rnd.Intn(seedLastYear-seedFirstYear+1)
	month := time.Month(1 + rnd.Intn(12))
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	birth := time.Date(year, month, 1+rnd.Intn(daysInMonth), 0, 0, 0, 0, time.UTC)

	gender := seedGenders[rnd.Intn(len(seedGenders))]
	active := rnd.Float64() < 0.9
	return &patient.PatientDTO{
		Name: &patient.NameDTO{
			Use:    "official",
			Family: familyNames[rnd.Intn(len(familyNames))],
			Given:  given,
		},
		BirthDate: birth,
		Gender:    &gender,
		Active:    &active,
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert random patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			logger := newLogger(cfg)

			svc, lookups, err := newPatientService(cfg, pool, logger, nil)
			if err != nil {
				return err
			}
			if err := patient.NewPatientRepo(pool).EnsureLookups(ctx); err != nil {
				return err
			}
			lookups.ResetGenders()
			lookups.ResetActives()

			created, err := seedPatients(ctx, svc, count, concurrency, time.Now().UnixNano())
			logger.Info().Int64("created", created).Int("requested", count).Msg("seed finished")
			return err
		},
	}
	cmd.Flags().Int("count", 100, "Number of patients to create")
	cmd.Flags().Int("concurrency", 4, "Concurrent inserts")
	return cmd
}

type patientCreator interface {
	CreatePatient(ctx context.Context, d *patient.PatientDTO) (*patient.PatientDTO, error)
}

// seedPatients creates count patients with at most concurrency inserts in
// flight. The first failure cancels the remaining inserts.
func seedPatients(ctx context.Context, svc patientCreator, count, concurrency int, seed int64) (int64, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	var created atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < count; i++ {
		rnd := rand.New(rand.NewSource(seed + int64(i)))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := svc.CreatePatient(ctx, randomPatient(rnd)); err != nil {
				return fmt.Errorf("create patient: %w", err)
			}
			created.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return created.Load(), err
}
