// Package mcp exposes the toolsets over the Model Context Protocol.
package mcp

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/tools"
)

// Server wraps the MCP SDK server around the toolsets.
type Server struct {
	mcpServer *mcp.Server
	logger    log.Logger

	cluster   *tools.Cluster
	lifecycle *tools.Lifecycle
	guest     *tools.GuestOps
	provision *tools.Provision
	snapshot  *tools.Snapshot
}

// Config holds everything the server needs.
type Config struct {
	Name    string
	Version string

	Cluster   *tools.Cluster
	Lifecycle *tools.Lifecycle
	GuestOps  *tools.GuestOps
	Provision *tools.Provision
	Snapshot  *tools.Snapshot

	Logger log.Logger
}

// NewServer creates the MCP server and registers every tool.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Cluster == nil || cfg.Lifecycle == nil || cfg.GuestOps == nil ||
		cfg.Provision == nil || cfg.Snapshot == nil {
		return nil, fmt.Errorf("all toolsets are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		logger:    logger.With("component", "mcp"),
		cluster:   cfg.Cluster,
		lifecycle: cfg.Lifecycle,
		guest:     cfg.GuestOps,
		provision: cfg.Provision,
		snapshot:  cfg.Snapshot,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return s, nil
}

// Run serves the MCP protocol on the transport until ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	return s.mcpServer.Run(ctx, transport)
}

// Handler exposes the underlying server for the streamable HTTP transport.
func (s *Server) Handler() *mcp.Server {
	return s.mcpServer
}

// NodeInput selects one cluster node.
type NodeInput struct {
	Node string `json:"node" jsonschema:"the cluster node name"`
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

// addTool infers the input schema from In and registers one tool.
func addTool[In any](s *Server, name, description string, handler func(context.Context, In) (tools.Result, error)) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", name, err)
	}

	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		result, err := handler(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		return resultToMCP(result, s.logger), nil, nil
	})
	return nil
}

func (s *Server) registerTools() error {
	type registration struct {
		name string
		add  func() error
	}

	regs := []registration{
		{"proxmox_list_nodes", func() error {
			return addTool(s, "proxmox_list_nodes",
				"List all nodes in the Proxmox cluster with CPU and memory usage.",
				func(ctx context.Context, _ EmptyInput) (tools.Result, error) {
					return s.cluster.ListNodes(ctx)
				})
		}},
		{"proxmox_list_vms", func() error {
			return addTool(s, "proxmox_list_vms",
				"List all VMs and LXC containers on a node with their status.",
				func(ctx context.Context, in NodeInput) (tools.Result, error) {
					return s.cluster.ListGuests(ctx, in.Node)
				})
		}},
		{"proxmox_get_vm_stats", func() error {
			return addTool(s, "proxmox_get_vm_stats",
				"Get live status of a VM: running state, uptime, CPU and memory usage.",
				s.cluster.VMStats)
		}},
		{"proxmox_get_vm_config", func() error {
			return addTool(s, "proxmox_get_vm_config",
				"Get the full configuration of a VM (cores, memory, disks, network).",
				s.cluster.VMConfig)
		}},
		{"proxmox_list_storage", func() error {
			return addTool(s, "proxmox_list_storage",
				"List storage pools on a node with capacity and usage.",
				func(ctx context.Context, in NodeInput) (tools.Result, error) {
					return s.cluster.ListStorage(ctx, in.Node)
				})
		}},
		{"proxmox_list_content", func() error {
			return addTool(s, "proxmox_list_content",
				"List the volumes on a storage pool: disk images, ISOs, container templates and backups.",
				s.cluster.ListContent)
		}},
		{"proxmox_list_backups", func() error {
			return addTool(s, "proxmox_list_backups",
				"List backup archives on a storage pool.",
				s.cluster.ListBackups)
		}},
		{"proxmox_get_task_status", func() error {
			return addTool(s, "proxmox_get_task_status",
				"Get the status and recent log of a background task by its UPID. "+
					"Use this to follow clones, migrations, backups and restores.",
				s.cluster.TaskStatus)
		}},

		{"proxmox_start_vm", func() error {
			return addTool(s, "proxmox_start_vm",
				"Start a VM or container by VMID.",
				s.lifecycle.Start)
		}},
		{"proxmox_stop_vm", func() error {
			return addTool(s, "proxmox_stop_vm",
				"Shut down a VM or container cleanly via the guest OS.",
				s.lifecycle.Shutdown)
		}},
		{"proxmox_force_stop_vm", func() error {
			return addTool(s, "proxmox_force_stop_vm",
				"Hard-stop a VM or container without signaling the guest OS. "+
					"Equivalent to pulling the power; prefer proxmox_stop_vm.",
				s.lifecycle.Stop)
		}},
		{"proxmox_reboot_vm", func() error {
			return addTool(s, "proxmox_reboot_vm",
				"Reboot a VM or container.",
				s.lifecycle.Reboot)
		}},
		{"proxmox_delete_vm", func() error {
			return addTool(s, "proxmox_delete_vm",
				"Delete a VM or container. The guest must be stopped first.",
				s.lifecycle.Delete)
		}},
		{"proxmox_update_vm", func() error {
			return addTool(s, "proxmox_update_vm",
				"Change the cores and/or memory of a VM, then reboot it (or start it if stopped) so the change takes effect.",
				s.lifecycle.UpdateSpecs)
		}},
		{"proxmox_migrate_vm", func() error {
			return addTool(s, "proxmox_migrate_vm",
				"Migrate a VM or container to another node. Online migration keeps VMs running; containers use restart mode.",
				s.lifecycle.Migrate)
		}},

		{"proxmox_execute_command", func() error {
			return addTool(s, "proxmox_execute_command",
				"Run a shell command inside a VM. Uses the QEMU guest agent when available "+
					"and falls back to SSH when credentials are supplied. "+
					"Returns stdout, stderr and the exit code; a non-zero exit code is reported, not an error.",
				s.guest.Execute)
		}},
		{"proxmox_install_software", func() error {
			return addTool(s, "proxmox_install_software",
				"Install software inside a VM. Known names (docker, nginx, update, wordpress_docker) "+
					"run curated install commands; any other name installs that package via apt.",
				s.guest.Install)
		}},
		{"proxmox_read_file_vm", func() error {
			return addTool(s, "proxmox_read_file_vm",
				"Read a text file from inside a VM by absolute path.",
				s.guest.ReadFile)
		}},
		{"proxmox_write_file_vm", func() error {
			return addTool(s, "proxmox_write_file_vm",
				"Write content to a file inside a VM by absolute path. Large files are transferred in chunks.",
				s.guest.WriteFile)
		}},

		{"proxmox_create_vm_from_template", func() error {
			return addTool(s, "proxmox_create_vm_from_template",
				"Clone a template into a new VM, set cores/memory, grow the disk, configure a static IP "+
					"and a cloud-init password, then start it. A generated password is returned exactly once.",
				s.provision.CreateVM)
		}},
		{"proxmox_create_lxc", func() error {
			return addTool(s, "proxmox_create_lxc",
				"Create a new LXC container from an OS template.",
				s.provision.CreateLXC)
		}},
		{"proxmox_restore_backup", func() error {
			return addTool(s, "proxmox_restore_backup",
				"Restore a VM from a vzdump backup archive.",
				s.provision.RestoreBackup)
		}},

		{"proxmox_create_snapshot", func() error {
			return addTool(s, "proxmox_create_snapshot",
				"Create a named snapshot of a VM.",
				s.snapshot.Create)
		}},
		{"proxmox_list_snapshots", func() error {
			return addTool(s, "proxmox_list_snapshots",
				"List the snapshots of a VM.",
				s.snapshot.List)
		}},
		{"proxmox_rollback_snapshot", func() error {
			return addTool(s, "proxmox_rollback_snapshot",
				"Roll a VM back to a named snapshot. State after the snapshot is lost.",
				s.snapshot.Rollback)
		}},
		{"proxmox_delete_snapshot", func() error {
			return addTool(s, "proxmox_delete_snapshot",
				"Delete a named snapshot of a VM.",
				s.snapshot.Delete)
		}},
		{"proxmox_create_backup", func() error {
			return addTool(s, "proxmox_create_backup",
				"Start a vzdump backup of a guest. Modes: snapshot (default, no downtime), suspend, stop.",
				s.snapshot.Backup)
		}},
		{"proxmox_list_firewall_rules", func() error {
			return addTool(s, "proxmox_list_firewall_rules",
				"List the firewall rules of a guest.",
				s.snapshot.ListFirewallRules)
		}},
		{"proxmox_add_firewall_rule", func() error {
			return addTool(s, "proxmox_add_firewall_rule",
				"Add an enabled firewall rule to a guest (direction, action, protocol, ports).",
				s.snapshot.AddFirewallRule)
		}},
	}

	for _, reg := range regs {
		if err := reg.add(); err != nil {
			return err
		}
	}

	s.logger.Info("tools registered", "count", len(regs))
	return nil
}
