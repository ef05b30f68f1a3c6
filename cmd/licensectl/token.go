package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
	"github.com/dukerupert/cloudlicensepro/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		ac  auth.AuthContext
		ttl time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with CLP_JWT_SECRET",
		Long: `Token prints a bearer token for local testing. Production tokens come from
the identity backend that shares CLP_JWT_SECRET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			switch ac.Role {
			case auth.RoleDeveloper, auth.RoleReseller, auth.RoleCustomer, auth.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", ac.Role)
			}

			tok, err := auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer).Issue(ac, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&ac.UserID, "user", "", "Subject user ID")
	cmd.Flags().StringVar(&ac.Email, "email", "", "Email claim")
	cmd.Flags().StringVar(&ac.Role, "role", auth.RoleDeveloper, "Role: developer, reseller, customer or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}
