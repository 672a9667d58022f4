package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/loader"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
)

var loadCmd = &cobra.Command{
	Use:   "load <catalog-file>",
	Short: "Load every item of a catalog and report the results",
	Long: `Loads the metadata and map items of every item in a catalog file, a few
items at a time, and prints one line per item. Exits non-zero when any item
failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().Int("parallel", 8, "items loaded at once")
	loadCmd.Flags().Bool("metadata-only", false, "skip map items")
	rootCmd.AddCommand(loadCmd)
}

type loadOutcome struct {
	item     model.Item
	metadata loader.Result
	mapItems *loader.Result
	count    int
}

func runLoad(cmd *cobra.Command, args []string) error {
	parallel, _ := cmd.Flags().GetInt("parallel")
	metadataOnly, _ := cmd.Flags().GetBool("metadata-only")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	items := s.cat.Items()
	outcomes := loadAll(ctx, items, parallel, !metadataOnly)

	failed := 0
	for _, o := range outcomes {
		if printOutcome(cmd.OutOrStdout(), o) {
			failed++
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), styleMuted.Render(fmt.Sprintf("%d items, %d failed", len(items), failed)))
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed to load", failed, len(items))
	}
	return nil
}

// loadAll loads items with at most parallel in flight, keeping their order.
func loadAll(ctx context.Context, items []model.Item, parallel int, mapItems bool) []loadOutcome {
	out := make([]loadOutcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, it := range items {
		g.Go(func() error {
			o := loadOutcome{item: it, metadata: it.LoadMetadata(gctx)}
			if m, ok := it.(model.Mappable); ok && mapItems {
				r := m.LoadMapItems(gctx)
				o.mapItems = &r
				o.count = len(m.MapItems())
			}
			out[i] = o
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// printOutcome writes one line for o and reports whether it failed.
func printOutcome(w io.Writer, o loadOutcome) bool {
	err := o.metadata.Err
	if err == nil && o.mapItems != nil {
		err = o.mapItems.Err
	}
	label := fmt.Sprintf("%s (%s)", o.item.ID(), o.item.Type())
	switch {
	case err == nil:
		fmt.Fprintf(w, "%s %s %s\n", styleOK.Render(iconDone), label, styleMuted.Render(fmt.Sprintf("%d map items", o.count)))
		return false
	case loaderr.IsWarning(err):
		fmt.Fprintf(w, "%s %s %s\n", styleWarning.Render(iconWarning), label, err)
		return false
	default:
		fmt.Fprintf(w, "%s %s\n", styleFailed.Render(iconFailed), label)
		for _, msg := range loaderr.Messages(err) {
			fmt.Fprintf(w, "    %s\n", msg)
		}
		return true
	}
}
