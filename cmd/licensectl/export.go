package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cloudlicensepro/internal/export"
	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/dukerupert/cloudlicensepro/internal/store"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		filter     model.LicenseFilter
		format     string
		passphrase string
		out        string
		upload     bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a developer's licenses as CSV or XLSX",
		Long: `Export writes every license matching the filters. With --seal-passphrase
(or CLP_EXPORT_PASSPHRASE) the file is encrypted and can be read back with
"licensectl export open". With --upload the sealed file is stored in the
CLP_ARCHIVE_* bucket instead and can be retrieved with "licensectl export fetch".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Status != "" && !model.ValidStatus(filter.Status) {
				return fmt.Errorf("unknown status %q", filter.Status)
			}
			if passphrase == "" {
				passphrase = os.Getenv("CLP_EXPORT_PASSPHRASE")
			}
			if upload && passphrase == "" {
				return errors.New("--upload requires a seal passphrase")
			}

			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			licenses, err := store.NewLicenseStore(db).ListAll(cmd.Context(), filter)
			if err != nil {
				return err
			}
			data, _, err := export.Render(format, licenses, passphrase)
			if err != nil {
				return err
			}

			if upload {
				a, err := opts.archiver()
				if err != nil {
					return err
				}
				if format == "" {
					format = export.FormatCSV
				}
				key, err := a.Put(cmd.Context(), filter.DeveloperID, format, data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d licenses to %s\n", len(licenses), key)
				return nil
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d licenses to %s\n", len(licenses), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.DeveloperID, "developer", "", "Developer ID whose licenses to export")
	cmd.Flags().StringVar(&filter.ProductID, "product", "", "Only this product ID")
	cmd.Flags().StringVar(&filter.Status, "status", "", "Only this status")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Match key, customer name or email")
	cmd.Flags().StringVar(&format, "format", export.FormatCSV, "Output format: csv or xlsx")
	cmd.Flags().StringVar(&passphrase, "seal-passphrase", "", "Encrypt the export with this passphrase")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().BoolVar(&upload, "upload", false, "Store the sealed export in the archive bucket")
	cmd.MarkFlagRequired("developer")

	cmd.AddCommand(newExportOpenCmd(), newExportFetchCmd(opts))
	return cmd
}

func newExportFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		passphrase string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "fetch <object-key>",
		Short: "Download an archived export, decrypting it when a passphrase is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.archiver()
			if err != nil {
				return err
			}
			data, err := a.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if passphrase == "" {
				passphrase = os.Getenv("CLP_EXPORT_PASSPHRASE")
			}
			if passphrase != "" {
				if data, err = export.Open(data, passphrase); err != nil {
					return err
				}
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o600)
		},
	}

	cmd.Flags().StringVar(&passphrase, "seal-passphrase", "", "Decrypt with this passphrase")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	return cmd
}

func newExportOpenCmd() *cobra.Command {
	var (
		passphrase string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "open <file>",
		Short: "Decrypt a sealed export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				passphrase = os.Getenv("CLP_EXPORT_PASSPHRASE")
			}
			if passphrase == "" {
				return errors.New("a passphrase is required")
			}

			sealed, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			plain, err := export.Open(sealed, passphrase)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(plain)
				return err
			}
			return os.WriteFile(out, plain, 0o600)
		},
	}

	cmd.Flags().StringVar(&passphrase, "seal-passphrase", "", "Passphrase the export was sealed with")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	return cmd
}
