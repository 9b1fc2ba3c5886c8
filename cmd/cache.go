package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the enrichment and AI result cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	Long:  "Removes cache entries whose expiry has passed. Lookups already treat them as misses, so purging only reclaims space.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.PurgeExpiredCache(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("cache purge complete", zap.Int("deleted", n))
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
