package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"campaign-generator/backend/internal/api"
	"campaign-generator/backend/internal/config"
	"campaign-generator/backend/internal/contacts"
	"campaign-generator/backend/internal/logging"
	"campaign-generator/backend/internal/mcp"
	"campaign-generator/backend/internal/services"
	"campaign-generator/backend/internal/session"
	"campaign-generator/backend/internal/tls"
	"campaign-generator/backend/internal/transport"
	"campaign-generator/backend/internal/workflow"
)

func main() {
	var configFile string

	root := &cobra.Command{
		Use:   "campaignd",
		Short: "Conversational campaign generator service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	root.Flags().StringVar(&configFile, "config", "", "Path to config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configFile string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logging
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting Campaign Generator Service",
		"addr", cfg.Server.Addr,
		"completion_url", cfg.Completion.URL,
		"contacts_api", cfg.Contacts.APIURL,
	)

	// Initialize service layer
	completion := services.NewHTTPCompletionClient(cfg.Completion.URL,
		time.Duration(cfg.Completion.TimeoutSeconds)*time.Second)
	lists := contacts.NewHTTPListProvider(cfg.Contacts.APIURL, cfg.Contacts.APIKey)
	matcher := contacts.NewMatcher(completion)

	registry := session.NewRegistry(session.Deps{
		Graph:       workflow.BuildGraph(),
		Completion:  completion,
		Lists:       lists,
		Matcher:     matcher,
		Checkpoints: workflow.NewMemoryCheckpointStore(),
		Logger:      logger,
	})

	logger.Info("Service layer initialized")

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("campaign-generator"))

	// Mount REST handlers
	apiHandler := api.NewHandler(registry)
	e.GET("/", echo.WrapHandler(http.HandlerFunc(apiHandler.HandleRoot)))
	e.GET("/health", echo.WrapHandler(http.HandlerFunc(apiHandler.HandleHealth)))
	e.GET("/sessions/:client_id", echo.WrapHandler(http.HandlerFunc(apiHandler.HandleSession)))

	// Mount the websocket endpoint
	wsHandler := transport.NewHandler(registry, logger)
	wsHandler.Mount(e)

	logger.Info("Websocket handler mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(lists, matcher)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	// Create HTTP server. No read/write timeouts: websocket sessions stay
	// open across long suspensions and must not be cut mid-question.
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     e,
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			// generate if missing and hostnames provided
			if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
				if len(cfg.TLS.Hostnames) > 0 {
					if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
						logger.Error("failed to generate self-signed cert", "error", err)
					}
				}
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}

	return nil
}
