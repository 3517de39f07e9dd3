package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"metal-catalog-service/internal/api"
	"metal-catalog-service/internal/cache"
	"metal-catalog-service/internal/database"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers",
	Long: `Run the catalog HTTP API and the gRPC maintenance service until SIGINT or SIGTERM.

Example:
  metal-catalog serve
  metal-catalog serve --migrate
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply database migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	if serveMigrate {
		if err := database.Migrate(cmd.Context(), a.db); err != nil {
			return err
		}
	}

	var treeCache api.CategoryTreeCache
	if a.cfg.Redis.Enabled() {
		client, err := cache.Connect(cmd.Context(), a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			// The tree is rebuilt from the database on every request without a cache.
			log.Warnw("redis unavailable, category tree cache disabled", "addr", a.cfg.Redis.Addr, "error", err)
		} else {
			defer client.Close()
			treeCache = cache.NewCategoryTreeCache(client, a.cfg.Redis.CategoryTreeTTL, log.Named("cache"))
			log.Infow("category tree cache enabled", "addr", a.cfg.Redis.Addr, "ttl", a.cfg.Redis.CategoryTreeTTL)
		}
	}
	if a.cfg.Admin.APIToken == "" {
		log.Warnw("ADMIN_API_TOKEN is not set, admin HTTP routes are disabled")
	}

	aggregator := a.aggregator()

	// --- Initialize API Handlers ---
	httpAPIHandler := api.NewHTTPHandler(a.store, a.store,
		api.WithLeadStore(a.store),
		api.WithRecounter(aggregator),
		api.WithTreeCache(treeCache),
		api.WithAdminToken(a.cfg.Admin.APIToken),
		api.WithLogger(log.Named("http")),
	)
	grpcAPIHandler := api.NewGRPCHandler(a.store, aggregator, treeCache, log.Named("grpc"))

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, log)
	httpRouter.Get("/api/v1/healthz", api.HealthHandler(a.store, log))
	httpAPIHandler.RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + a.cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  a.cfg.HttpServer.TimeoutRead,
		WriteTimeout: a.cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  a.cfg.HttpServer.TimeoutIdle,
	}

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(log, grpcAPIHandler)
	grpcListener, err := net.Listen("tcp", ":"+a.cfg.GrpcServer.Port)
	if err != nil {
		return fmt.Errorf("listen for gRPC on port %s: %w", a.cfg.GrpcServer.Port, err)
	}

	serveErr := make(chan error, 2)
	go func() {
		log.Infow("HTTP server listening", "port", a.cfg.HttpServer.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	go func() {
		log.Infow("gRPC server listening", "port", a.cfg.GrpcServer.Port)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	// --- Graceful Shutdown ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Infow("received signal, starting graceful shutdown", "signal", sig.String())
	case runErr = <-serveErr:
		log.Errorw("server failed, shutting down", "error", runErr)
	}

	shutdown(log, httpServer, grpcServer)
	return runErr
}

func setupBaseMiddleware(router *chi.Mux, log *zap.SugaredLogger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(api.RequestLogger(log.Named("http")))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
}

func setupGRPCServer(log *zap.SugaredLogger, handler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(api.UnaryLoggingInterceptor(log.Named("grpc"))))

	api.RegisterMaintenanceServer(s, handler)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.MaintenanceServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, healthServer)

	reflection.Register(s)
	log.Infow("gRPC services registered", "service", api.MaintenanceServiceName)
	return s
}

func shutdown(log *zap.SugaredLogger, httpServer *http.Server, grpcServer *grpc.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP server graceful shutdown failed", "error", err)
	} else {
		log.Infow("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		log.Infow("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		log.Warnw("gRPC server graceful shutdown timed out, forcing stop", "error", shutdownCtx.Err())
		grpcServer.Stop()
	}
}
