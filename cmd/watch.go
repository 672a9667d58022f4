package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TerriaJS/terriajs-sub017/internal/catalog"
	"github.com/TerriaJS/terriajs-sub017/internal/loaderr"
)

var watchCmd = &cobra.Command{
	Use:   "watch <catalog-file>",
	Short: "Reload a catalog whenever its file changes",
	Long: `Loads a catalog file, reloads it when the file changes and reloads
every item after each change. Auto-refreshing items refresh meanwhile.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := catalog.NewWatcher(s.cat, args[0])
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	refresh := startRefresher(ctx, s)
	reportAll(ctx, s, cmd)
	fmt.Fprintln(out, styleMuted.Render("watching "+w.Path))
	for {
		select {
		case <-ctx.Done():
			refresh()
			return saveUserStrata(s)
		case err, ok := <-w.Reloads:
			if !ok {
				refresh()
				return nil
			}
			if err != nil {
				fmt.Fprintf(out, "%s reload reported errors\n", styleWarning.Render(iconWarning))
				for _, msg := range loaderr.Messages(err) {
					fmt.Fprintf(out, "    %s\n", msg)
				}
			}
			refresh()
			refresh = startRefresher(ctx, s)
			fmt.Fprintln(out, styleTitle.Render("reloaded "+w.Path))
			reportAll(ctx, s, cmd)
		}
	}
}

// startRefresher runs a refresher over the current items and returns a
// function that stops it and waits for it to exit.
func startRefresher(ctx context.Context, s *session) func() {
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = catalog.NewRefresher(s.cat, s.cfg.AutoRefresh.MinInterval).Run(rctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func reportAll(ctx context.Context, s *session, cmd *cobra.Command) {
	for _, o := range loadAll(ctx, s.cat.Items(), 8, true) {
		printOutcome(cmd.OutOrStdout(), o)
	}
}
