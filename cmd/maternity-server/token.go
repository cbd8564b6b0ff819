package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/maternity/internal/config"
	"github.com/ehr/maternity/internal/platform/auth"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			scopes, _ := cmd.Flags().GetStringSlice("scope")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}
			token, err := auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				Audience:   cfg.AuthAudience,
				SigningKey: []byte(cfg.AuthSigningKey),
			}.IssueToken(subject, roles, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("subject", "cli-user", "Token subject")
	cmd.Flags().StringSlice("role", []string{"clinician"}, "Roles to grant")
	cmd.Flags().StringSlice("scope", []string{"user/Patient.read"}, "FHIR scopes to grant")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
