// Package cmd provides the CLI commands for the proxmox-mcp server.
//
// Commands:
//   - mcp: Model Context Protocol server (stdio or streamable HTTP)
//   - version: version information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/vmforge/proxmox-mcp/internal/log"
)

// Execute is the main entry point for the proxmox-mcp CLI.
func Execute() error {
	// Initialize the default logger once at entry point. The MCP protocol
	// owns stdout, so logs go to stderr.
	level := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(log.New(log.Config{Level: level, JSON: level == slog.LevelDebug}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "mcp":
		return runMCP()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("proxmox-mcp - Proxmox VE automation over the Model Context Protocol")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  proxmox-mcp mcp          Start the MCP server")
	fmt.Println("  proxmox-mcp --version    Show version information")
	fmt.Println("  proxmox-mcp --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  PROXMOX_URL              Required: API endpoint, e.g. https://pve.example.com:8006")
	fmt.Println("  PROXMOX_USER             User for password auth, e.g. root@pam")
	fmt.Println("  PROXMOX_PASSWORD         Password for password auth")
	fmt.Println("  PROXMOX_TOKEN_ID         API token id (preferred over password auth)")
	fmt.Println("  PROXMOX_TOKEN_SECRET     API token secret")
	fmt.Println("  PROXMOX_VERIFY_SSL       Verify the API TLS certificate (default: false)")
	fmt.Println("  MCP_TRANSPORT            stdio (default) or http")
	fmt.Println("  MCP_PORT                 Port for the http transport (default: 8000)")
	fmt.Println("  LOG_LEVEL                debug, info, warn or error (default: info)")
	fmt.Println()
	fmt.Println("A config file is also read from ~/.proxmox-mcp/config.yaml if present.")
}
