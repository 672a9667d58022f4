// Package server exposes a loaded catalog over HTTP with echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/TerriaJS/terriajs-sub017/internal/catalog"
)

// shutdownTimeout bounds how long Start waits for requests in flight.
const shutdownTimeout = 5 * time.Second

// Server serves the items of one catalog.
type Server struct {
	cat    *catalog.Catalog
	store  catalog.UserStrataStore
	logger *zap.SugaredLogger
	echo   *echo.Echo
}

// Option configures a Server.
type Option func(*Server)

// WithStore saves user strata to st after every trait update.
func WithStore(st catalog.UserStrataStore) Option {
	return func(s *Server) { s.store = st }
}

// New returns a server for cat with its routes registered.
func New(cat *catalog.Catalog, logger *zap.SugaredLogger, opts ...Option) *Server {
	s := &Server{cat: cat, logger: logger, echo: echo.New()}
	for _, opt := range opts {
		opt(s)
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debugw("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/groups", s.groups)
	items := s.echo.Group("/items")
	items.GET("", s.listItems)
	items.GET("/:id", s.getItem)
	items.POST("/:id/load", s.loadItem)
	items.GET("/:id/mapitems", s.mapItems)
	items.GET("/:id/table", s.table)
	items.GET("/:id/tiles/:z/:x/:y", s.tile)
	items.PATCH("/:id/traits", s.patchTraits)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- s.echo.Start(addr) }()
	s.logger.Infow("serving catalog", "addr", addr, "items", len(s.cat.Items()))

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
