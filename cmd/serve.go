package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TerriaJS/terriajs-sub017/internal/catalog"
	"github.com/TerriaJS/terriajs-sub017/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve <catalog-file>",
	Short: "Serve a catalog over HTTP",
	Long: `Serves the items of a catalog file over HTTP. Auto-refreshing items
refresh on their interval, and trait updates are saved to the cache when
one is configured.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx, args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = s.cfg.Server.Addr
	}
	var opts []server.Option
	if s.store != nil {
		opts = append(opts, server.WithStore(s.store))
	}
	srv := server.New(s.cat, s.logger, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx, addr) })
	g.Go(func() error { return catalog.NewRefresher(s.cat, s.cfg.AutoRefresh.MinInterval).Run(gctx) })
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return saveUserStrata(s)
}

// saveUserStrata persists user changes on the way out.
func saveUserStrata(s *session) error {
	if s.store == nil {
		return nil
	}
	return s.cat.SaveUserStrata(context.Background(), s.store)
}
