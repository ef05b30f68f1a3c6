package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cloudlicensepro/internal/license"
	"github.com/dukerupert/cloudlicensepro/internal/licensecheck"
	"github.com/dukerupert/cloudlicensepro/internal/store"
)

// errInvalidLicense makes the process exit with status 2 after the result
// has been printed.
var errInvalidLicense = errors.New("license is not valid")

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		productID string
		remote    string
		asJSON    bool
		timeout   time.Duration
		watch     bool
		interval  time.Duration
		grace     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "validate <key>",
		Short: "Check whether a license key is valid",
		Long: `Validate checks a key once against the local database, or against a
running server with --remote. With --remote --watch it keeps checking every
--interval until interrupted, the way an installed application would, and
reports whether the key is still usable when the server is unreachable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var res licensecheck.Result

			if watch {
				if remote == "" {
					return errors.New("--watch requires --remote")
				}
				return watchRemote(ctx, cmd.OutOrStdout(), license.Config{
					Key:           args[0],
					ProductID:     productID,
					BaseURL:       remote,
					CheckInterval: interval,
					GracePeriod:   grace,
				})
			}

			if remote != "" {
				client := license.NewClient(license.Config{BaseURL: remote})
				r, err := client.Check(ctx, args[0], productID)
				if err != nil {
					return err
				}
				res = r
			} else {
				db, err := opts.openDB()
				if err != nil {
					return err
				}
				defer db.Close()

				v := licensecheck.New(store.NewLookupStore(db))
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				res = v.Validate(ctx, args[0], licensecheck.ResolveOptions{ProductID: productID})
			}

			if err := printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
				return err
			}
			if !res.Valid {
				return errInvalidLicense
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&productID, "product", "", "Prefer licenses for this product ID")
	cmd.Flags().StringVar(&remote, "remote", "", "Validate against a running server at this base URL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Time limit for local lookups")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep checking the key against --remote until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "Time between checks with --watch")
	cmd.Flags().DurationVar(&grace, "grace", 7*24*time.Hour, "How long a valid key stays usable while the server is unreachable")
	return cmd
}

// watchRemote reports every periodic check until ctx is done. It fails with
// errInvalidLicense when the key is not usable at the end.
func watchRemote(ctx context.Context, w io.Writer, cfg license.Config) error {
	var client *license.Client
	cfg.OnCheck = func(s license.Status) {
		state := "unlicensed"
		if client.Licensed() {
			state = "licensed"
		}
		if s.Offline {
			state += " (offline)"
		}
		msg := licensecheck.FormatResult(s.Result).Message
		if s.Warning != "" {
			msg = s.Warning
		}
		fmt.Fprintf(w, "%s %s: %s\n", time.Now().UTC().Format(time.RFC3339), state, msg)
	}
	client = license.NewClient(cfg)

	client.Start(ctx)
	<-ctx.Done()
	client.Stop()

	if !client.Licensed() {
		return errInvalidLicense
	}
	return nil
}

func printResult(w io.Writer, res licensecheck.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	d := licensecheck.FormatResult(res)
	fmt.Fprintln(w, d.Message)
	if !res.Valid {
		return nil
	}
	fmt.Fprintf(w, "  status:      %s\n", res.Status)
	fmt.Fprintf(w, "  type:        %s\n", res.Type)
	fmt.Fprintf(w, "  source:      %s\n", res.Source)
	if res.Customer != nil {
		fmt.Fprintf(w, "  customer:    %s %s\n", res.Customer.Name, res.Customer.Email)
	}
	if res.ExpiresAt != nil {
		fmt.Fprintf(w, "  expires:     %s\n", res.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if a := res.Activations; a != nil {
		limit := "unlimited"
		if a.Max != nil {
			limit = fmt.Sprint(*a.Max)
		}
		fmt.Fprintf(w, "  activations: %d of %s\n", a.Current, limit)
	}
	return nil
}
