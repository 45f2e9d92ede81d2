package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gofalre.io/storefront/driver"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog and event tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := driver.ConnectPostgres(cmd.Context(), cfg.Postgres.DSN, driver.PostgresOptions{MaxConns: 1})
		if err != nil {
			return err
		}
		defer pool.Close()

		if err = driver.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample products",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), noEvents)
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.svc.SeedProducts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
		return nil
	},
}

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage catalog products",
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product; carts drop it on their next read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}

		a, err := newApp(cmd.Context(), publishEvents)
		if err != nil {
			return err
		}
		defer a.close()

		if err = a.svc.DeleteProduct(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted product %d\n", id)
		return nil
	},
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), noEvents)
		if err != nil {
			return err
		}
		defer a.close()

		category, _ := cmd.Flags().GetString("category")
		products, err := a.svc.ListProducts(cmd.Context(), 100, 0)
		if category != "" {
			products, err = a.svc.ListProductsByCategory(cmd.Context(), category)
		}
		if err != nil {
			return err
		}
		for _, p := range products {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Category)
		}
		return nil
	},
}

func init() {
	productListCmd.Flags().String("category", "", "only list products in this category")
	productCmd.AddCommand(productDeleteCmd, productListCmd)
}
