package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/showroombot/internal/config"
)

func inventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect the showroom listing source",
	}
	cmd.AddCommand(inventoryScrapeCmd())
	return cmd
}

func inventoryScrapeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch the listings once and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cache, err := newInventoryCache(cfg)
			if err != nil {
				return err
			}
			if _, err := cache.Refresh(context.Background()); err != nil {
				return err
			}

			vehicles := cache.Vehicles()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(vehicles)
			}
			for _, v := range vehicles {
				fmt.Println(v.Line())
			}
			fmt.Printf("\n%d listings\n", len(vehicles))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print listings as JSON")
	return cmd
}
