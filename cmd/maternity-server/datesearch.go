package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ehr/maternity/internal/domain/patient"
	"github.com/ehr/maternity/internal/platform/fhir"
	"github.com/ehr/maternity/pkg/pagination"
)

func dateSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datesearch",
		Short: "Inspect and run birthdate searches",
	}

	explainCmd := &cobra.Command{
		Use:   "explain <param>...",
		Short: "Show how date parameters are parsed and pushed to storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tz, _ := cmd.Flags().GetString("tz")
			records, _ := cmd.Flags().GetStringSlice("record")

			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("--tz: %w", err)
			}
			parser := fhir.NewDateParser(loc)
			criteria, err := parser.ParseAll(args)
			if err != nil {
				return err
			}

			instants := make([]time.Time, 0, len(records))
			for _, r := range records {
				t, err := time.Parse(time.RFC3339, r)
				if err != nil {
					return fmt.Errorf("--record %q: %w", r, err)
				}
				instants = append(instants, t)
			}
			explainCriteria(cmd.OutOrStdout(), criteria, instants)
			return nil
		},
	}
	explainCmd.Flags().String("tz", "UTC", "Location for date-times without an offset")
	explainCmd.Flags().StringSlice("record", nil, "RFC 3339 birth instants to test against the criteria")
	cmd.AddCommand(explainCmd)

	queryCmd := &cobra.Command{
		Use:   "query <param>...",
		Short: "Run a birthdate search against the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, _, err := newPatientService(cfg, pool, newLogger(cfg), nil)
			if err != nil {
				return err
			}
			page := pagination.Params{Limit: limit, Offset: offset}
			patients, total, err := svc.SearchPatients(ctx, args, page)
			if err != nil {
				return err
			}
			renderPatients(cmd.OutOrStdout(), patients)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d match(es)\n", len(patients), total)
			if page.HasNext(total) {
				fmt.Fprintf(cmd.OutOrStdout(), "next page: --offset %d\n", page.NextOffset())
			}
			return nil
		},
	}
	queryCmd.Flags().Int("limit", pagination.MaxLimit, "Page size")
	queryCmd.Flags().Int("offset", 0, "Page offset")
	cmd.AddCommand(queryCmd)

	return cmd
}

func formatInstant(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func explainCriteria(w io.Writer, criteria fhir.DateCriteria, instants []time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Value", "Prefix", "Precision", "Start", "End", "Pushdown"})
	for _, p := range criteria {
		pushdown := "none"
		if b, ok := p.PushdownBounds(); ok {
			pushdown = b.String()
		}
		table.Append([]string{
			p.Raw,
			fmt.Sprintf("%s (%s)", p.Prefix, p.Prefix.Description()),
			p.Precision.String(),
			formatInstant(p.Start),
			formatInstant(p.End),
			pushdown,
		})
	}
	table.Render()
	fmt.Fprintf(w, "storage range: %s\n", criteria.Bounds())

	if len(instants) == 0 {
		return
	}
	results := tablewriter.NewWriter(w)
	results.SetHeader([]string{"Record", "Interval", "Matches"})
	for _, t := range instants {
		start, end := fhir.RecordInterval(t)
		results.Append([]string{
			formatInstant(t),
			"[" + formatInstant(start) + ", " + formatInstant(end) + ")",
			strconv.FormatBool(criteria.Matches(t)),
		})
	}
	results.Render()
}

func renderPatients(w io.Writer, patients []*patient.PatientDTO) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Family", "Given", "Birth Date", "Gender", "Active"})
	rows := make([][]string, 0, len(patients))
	for _, p := range patients {
		family, given := "", ""
		if p.Name != nil {
			family = p.Name.Family
			given = strings.Join(p.Name.Given, " ")
		}
		gender, active := "", ""
		if p.Gender != nil {
			gender = *p.Gender
		}
		if p.Active != nil {
			active = strconv.FormatBool(*p.Active)
		}
		rows = append(rows, []string{p.ID.String(), family, given, formatInstant(p.BirthDate), gender, active})
	}
	table.AppendBulk(rows)
	table.Render()
}
