package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vmforge/proxmox-mcp/internal/config"
	"github.com/vmforge/proxmox-mcp/internal/guest"
	"github.com/vmforge/proxmox-mcp/internal/mcp"
	"github.com/vmforge/proxmox-mcp/internal/provision"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
	"github.com/vmforge/proxmox-mcp/internal/tools"
)

// runMCP wires the Proxmox client, the guest executor and the toolsets, then
// serves MCP on the configured transport until interrupted.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting proxmox-mcp", "version", Version, "config", cfg)

	client, err := proxmox.New(proxmox.Config{
		URL:         cfg.URL,
		User:        cfg.User,
		Password:    cfg.Password,
		TokenID:     cfg.TokenID,
		TokenSecret: cfg.TokenSecret,
		VerifySSL:   cfg.VerifySSL,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating proxmox client: %w", err)
	}

	executor := guest.NewExecutor(
		guest.NewResolver(client, logger),
		guest.NewAgentChannel(client, guest.DefaultTimeouts.PollInterval, logger),
		guest.NewSSHChannel(guest.DefaultTimeouts.Connect, logger),
		guest.DefaultTimeouts,
		logger,
	)
	provisioner := provision.New(client, logger)

	cluster, err := tools.NewCluster(client, logger)
	if err != nil {
		return fmt.Errorf("creating cluster toolset: %w", err)
	}
	lifecycle, err := tools.NewLifecycle(client, provisioner, logger)
	if err != nil {
		return fmt.Errorf("creating lifecycle toolset: %w", err)
	}
	guestOps, err := tools.NewGuestOps(executor, logger)
	if err != nil {
		return fmt.Errorf("creating guest toolset: %w", err)
	}
	prov, err := tools.NewProvision(provisioner, client, logger)
	if err != nil {
		return fmt.Errorf("creating provision toolset: %w", err)
	}
	snapshot, err := tools.NewSnapshot(client, logger)
	if err != nil {
		return fmt.Errorf("creating snapshot toolset: %w", err)
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:      "proxmox-mcp",
		Version:   Version,
		Cluster:   cluster,
		Lifecycle: lifecycle,
		GuestOps:  guestOps,
		Provision: prov,
		Snapshot:  snapshot,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if cfg.Transport == config.TransportHTTP {
		return serveHTTP(ctx, server, cfg.Port)
	}

	logger.Info("MCP server ready", "transport", "stdio")
	if err := server.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	logger.Info("MCP server shut down gracefully")
	return nil
}

// serveHTTP exposes the MCP server via the streamable HTTP transport and
// shuts it down when ctx is canceled.
func serveHTTP(ctx context.Context, server *mcp.Server, port int) error {
	handler := mcpSdk.NewStreamableHTTPHandler(func(*http.Request) *mcpSdk.Server {
		return server.Handler()
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("MCP server ready", "transport", "http", "addr", httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		slog.Info("MCP server shut down gracefully")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server error: %w", err)
	}
}
