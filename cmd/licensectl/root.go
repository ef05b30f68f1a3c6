package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/dukerupert/cloudlicensepro/internal/archive"
	"github.com/dukerupert/cloudlicensepro/internal/config"
	"github.com/dukerupert/cloudlicensepro/internal/database"
	"github.com/dukerupert/cloudlicensepro/internal/logging"
)

type rootOptions struct {
	driver   string
	dsn      string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "licensectl",
		Short: "Validate license keys and manage a CloudLicensePro database",
		Long: `licensectl talks to the CloudLicensePro database directly, or to a running
server with --remote. Database settings default to the CLP_* environment
variables and an optional .env file.

Examples:
  # Validate a key against the local database
  licensectl validate CLP-1A2B-3C4D-5E6F-7A8B

  # Validate against a running server, scoped to one product
  licensectl validate clp1a2b3c4d5e6f7a8b --product 6f1c... --remote https://licenses.example.com

  # Load demo data and export a developer's licenses
  licensectl seed seed.example.yaml
  licensectl export --developer dev-1 --format xlsx --out licenses.xlsx`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(opts.logLevel, "text")
		},
	}

	cmd.PersistentFlags().StringVar(&opts.driver, "db-driver", "", "Database driver, sqlite or postgres (overrides CLP_DB_DRIVER)")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "Database DSN (overrides CLP_DB_DSN)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newValidateCmd(opts),
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newExportCmd(opts),
		newTokenCmd(),
	)
	return cmd
}

// openDB opens the configured database, applying flag overrides.
func (o *rootOptions) openDB() (*sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	driver, dsn := cfg.DBDriver, cfg.DBDSN
	if o.driver != "" {
		driver = o.driver
	}
	if o.dsn != "" {
		dsn = o.dsn
	}
	db, err := database.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	return db, nil
}

// archiver builds export storage from the CLP_ARCHIVE_* settings.
func (o *rootOptions) archiver() (*archive.Archiver, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := archive.New(archive.Config{
		Endpoint:  cfg.ArchiveEndpoint,
		Bucket:    cfg.ArchiveBucket,
		Region:    cfg.ArchiveRegion,
		AccessKey: cfg.ArchiveAccessKey,
		SecretKey: cfg.ArchiveSecretKey,
	})
	if !a.Enabled() {
		return nil, archive.ErrDisabled
	}
	return a, nil
}
