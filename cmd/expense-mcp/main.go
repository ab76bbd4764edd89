package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"expensemcp/internal/categories"
	"expensemcp/internal/cli"
	"expensemcp/internal/config"
	apphttp "expensemcp/internal/http"
	"expensemcp/internal/log"
	"expensemcp/internal/mcpserver"
	"expensemcp/internal/services"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run returns only after every resource is closed so main can exit safely.
func run() error {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg)
	cli.ValidateConfig(logger, cfg)

	repo := cli.InitStore(logger, cfg.DBPath())
	publisher := cli.InitPublisher(logger, cfg)

	svc := services.NewExpenseService(repo, publisher, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close expense service", log.FieldError, err)
		}
	}()

	mcpSrv := mcpserver.New(svc, categories.NewReader(cfg.CategoriesPath), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cfg.Transport {
	case config.TransportStdio:
		err = serveStdio(ctx, logger, mcpSrv)
	default:
		err = serveHTTP(ctx, logger, cfg, mcpSrv, repo)
	}

	if err != nil {
		logger.Error("Server error", log.FieldError, err, log.FieldTransport, cfg.Transport)
		return err
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
	return nil
}

func serveStdio(ctx context.Context, logger *log.Logger, mcpSrv *server.MCPServer) error {
	logger.Info("Starting expense MCP server",
		log.FieldOperation, log.OpStartup,
		log.FieldTransport, config.TransportStdio)

	err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveHTTP(ctx context.Context, logger *log.Logger, cfg *config.Config, mcpSrv *server.MCPServer, pinger apphttp.Pinger) error {
	srv := apphttp.NewServer(apphttp.Options{
		Addr:               cfg.Addr(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, server.NewStreamableHTTPServer(mcpSrv), pinger, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting expense MCP server",
			log.FieldOperation, log.OpStartup,
			log.FieldTransport, config.TransportHTTP,
			"addr", cfg.Addr(),
			log.FieldPath, apphttp.MCPPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
