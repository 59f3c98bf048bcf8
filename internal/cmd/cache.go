package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the persistent cache tier",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired cache entries, or every entry with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		yes, _ := cmd.Flags().GetBool("yes")
		if all && !yes {
			return errors.New("--all requires --yes")
		}

		stack, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close() // nolint:errcheck // best-effort cleanup

		purger, ok := stack.purger()
		if !ok {
			return fmt.Errorf("cache backend %q has no persistent tier to purge", stack.Config.Cache.Backend)
		}
		removed, err := purger.PurgeEntries(cmd.Context(), all)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", removed)
		return err
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count live cache entries per data type",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close() // nolint:errcheck // best-effort cleanup

		if normalizeBackend(stack.Config.Cache.Backend, backendStore) != backendStore {
			return fmt.Errorf("cache stats require the store backend (configured: %q)", stack.Config.Cache.Backend)
		}
		counts, err := stack.Store.CacheStats(cmd.Context())
		if err != nil {
			return err
		}

		namespaces := make([]string, 0, len(counts))
		for ns := range counts {
			namespaces = append(namespaces, ns)
		}
		sort.Strings(namespaces)
		out := cmd.OutOrStdout()
		if len(namespaces) == 0 {
			_, err = fmt.Fprintln(out, "(no cache entries)")
			return err
		}
		for _, ns := range namespaces {
			if _, err := fmt.Fprintf(out, "%-16s %d\n", ns, counts[ns]); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().Bool("all", false, "Remove every entry, not only expired ones")
	cachePurgeCmd.Flags().Bool("yes", false, "Confirm --all")

	cacheCmd.AddCommand(cachePurgeCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
