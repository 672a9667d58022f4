package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TerriaJS/terriajs-sub017/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the fetch cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and size",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached responses",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheClearCmd.Flags().Bool("expired", false, "only delete expired entries")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// errNoCache is returned when cache.path is not configured.
var errNoCache = errors.New("no cache configured; set cache.path or --cache")

func cacheStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errNoCache
	}
	return st, nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	st, err := cacheStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d (%d expired)\n", styleTitle.Render("entries"), stats.Entries, stats.Expired)
	fmt.Fprintf(out, "%s %d bytes\n", styleTitle.Render("size"), stats.Bytes)
	fmt.Fprintf(out, "%s %d\n", styleTitle.Render("user strata"), stats.UserStrata)
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	expired, _ := cmd.Flags().GetBool("expired")
	st, err := cacheStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	var n int64
	if expired {
		n, err = st.PurgeExpired(cmd.Context())
	} else {
		n, err = st.Clear(cmd.Context())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries removed\n", styleOK.Render(iconDone), n)
	return nil
}
