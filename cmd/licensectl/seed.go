package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cloudlicensepro/internal/seed"
	"github.com/dukerupert/cloudlicensepro/internal/store"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load products, licenses and resellers from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.Load(args[0])
			if err != nil {
				return err
			}

			db, err := opts.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			sum, err := seed.Apply(cmd.Context(), seed.Stores{
				Products:     store.NewProductStore(db),
				Customers:    store.NewCustomerStore(db),
				Licenses:     store.NewLicenseStore(db),
				Resellers:    store.NewResellerStore(db),
				CustomerKeys: store.NewCustomerKeyStore(db),
			}, f)
			if err != nil {
				return fmt.Errorf("seed %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"seeded %d products, %d customers, %d licenses (%d activations), %d resellers, %d listings, %d sold keys\n",
				sum.Products, sum.Customers, sum.Licenses, sum.Activations, sum.Resellers, sum.Listings, sum.CustomerKeys)
			return nil
		},
	}
}
