package commands

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/recthink/recthink-client/internal/api"
	"github.com/recthink/recthink-client/internal/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr string
	serveInit bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the chat session to a browser UI",
	Long: `Start a local HTTP bridge that exposes the session state and actions
as JSON endpoints, with live state updates over server-sent events.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (RECTHINK_LISTEN_ADDR)")
	serveCmd.Flags().BoolVar(&serveInit, "init", false, "Initialize a session at startup")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.ListenAddr = serveAddr
	}
	logger := setupLogger(os.Stdout, cfg.SlogLevel())

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveInit && !a.ctrl.StartSession(ctx) {
		logger.Warn("Initial session failed", "error", a.ctrl.Snapshot().Error)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	api.NewHandler(a.ctrl, logger).RegisterRoutes(r)

	// SSE connections require no WriteTimeout. Request contexts derive from
	// ctx so open event streams end on shutdown.
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		BaseContext:  func(net.Listener) context.Context { return ctx },
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Bridge listening", "addr", srv.Addr, "api_url", cfg.APIURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Bridge stopped with error", "error", err)
		return err
	}
	logger.Info("Bridge stopped successfully")
	return nil
}
