package tools

import (
	"context"
	"fmt"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

// ClusterAPI is the read-only slice of the Proxmox client the cluster
// toolset needs.
type ClusterAPI interface {
	Nodes(ctx context.Context) ([]proxmox.Node, error)
	NodeGuests(ctx context.Context, node string, typ proxmox.GuestType) ([]proxmox.VM, error)
	VMStatus(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (*proxmox.VMStatus, error)
	VMConfig(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (map[string]any, error)
	Storages(ctx context.Context, node string) ([]proxmox.Storage, error)
	StorageContents(ctx context.Context, node, storage, contentType string) ([]proxmox.StorageContent, error)
	TaskStatus(ctx context.Context, node, upid string) (*proxmox.TaskStatus, error)
	TaskLog(ctx context.Context, node, upid string) ([]proxmox.TaskLogLine, error)
}

// Cluster answers inventory and status queries.
type Cluster struct {
	api    ClusterAPI
	logger log.Logger
}

// NewCluster creates the cluster toolset.
func NewCluster(api ClusterAPI, logger log.Logger) (*Cluster, error) {
	if api == nil {
		return nil, fmt.Errorf("cluster API is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Cluster{api: api, logger: logger.With("toolset", "cluster")}, nil
}

// ListNodes returns every node in the cluster.
func (c *Cluster) ListNodes(ctx context.Context) (Result, error) {
	nodes, err := c.api.Nodes(ctx)
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"nodes": nodes, "count": len(nodes)}), nil
}

// GuestInput addresses a guest on a node.
type GuestInput struct {
	Node string `json:"node" jsonschema:"the cluster node name"`
	VMID int    `json:"vmid" jsonschema:"the guest VMID"`
}

func (in GuestInput) validate() (string, error) {
	if in.VMID <= 0 {
		return "", fmt.Errorf("%w: vmid required", security.ErrInvalidInput)
	}
	return security.NodeName(in.Node)
}

// ListGuests returns the VMs and containers on a node.
func (c *Cluster) ListGuests(ctx context.Context, node string) (Result, error) {
	node, err := security.NodeName(node)
	if err != nil {
		return errorResult(err)
	}

	vms, err := c.api.NodeGuests(ctx, node, proxmox.GuestQemu)
	if err != nil {
		return errorResult(err)
	}
	cts, err := c.api.NodeGuests(ctx, node, proxmox.GuestLXC)
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"node": node, "vms": vms, "containers": cts}), nil
}

// VMStats returns the live status of a VM.
func (c *Cluster) VMStats(ctx context.Context, in GuestInput) (Result, error) {
	node, err := in.validate()
	if err != nil {
		return errorResult(err)
	}
	status, err := c.api.VMStatus(ctx, node, proxmox.GuestQemu, in.VMID)
	if err != nil {
		return errorResult(err)
	}
	return success(status), nil
}

// VMConfig returns the configuration of a VM.
func (c *Cluster) VMConfig(ctx context.Context, in GuestInput) (Result, error) {
	node, err := in.validate()
	if err != nil {
		return errorResult(err)
	}
	cfg, err := c.api.VMConfig(ctx, node, proxmox.GuestQemu, in.VMID)
	if err != nil {
		return errorResult(err)
	}
	return success(cfg), nil
}

// ListStorage returns storage pools and usage on a node.
func (c *Cluster) ListStorage(ctx context.Context, node string) (Result, error) {
	node, err := security.NodeName(node)
	if err != nil {
		return errorResult(err)
	}
	storages, err := c.api.Storages(ctx, node)
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"node": node, "storages": storages}), nil
}

// StorageContentInput addresses a storage pool on a node.
type StorageContentInput struct {
	Node    string `json:"node" jsonschema:"the cluster node name"`
	Storage string `json:"storage" jsonschema:"the storage identifier"`
}

// ListContent returns the volumes on a storage pool.
func (c *Cluster) ListContent(ctx context.Context, in StorageContentInput) (Result, error) {
	node, err := security.NodeName(in.Node)
	if err != nil {
		return errorResult(err)
	}
	storage, err := security.ConfigID(in.Storage)
	if err != nil {
		return errorResult(err)
	}
	contents, err := c.api.StorageContents(ctx, node, storage, "")
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"storage": storage, "volumes": contents}), nil
}

// ListBackups returns the backup archives on a storage pool.
func (c *Cluster) ListBackups(ctx context.Context, in StorageContentInput) (Result, error) {
	node, err := security.NodeName(in.Node)
	if err != nil {
		return errorResult(err)
	}
	storage, err := security.ConfigID(in.Storage)
	if err != nil {
		return errorResult(err)
	}
	backups, err := c.api.StorageContents(ctx, node, storage, "backup")
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"storage": storage, "backups": backups, "count": len(backups)}), nil
}

// TaskInput addresses a background task.
type TaskInput struct {
	Node string `json:"node" jsonschema:"the cluster node name"`
	UPID string `json:"upid" jsonschema:"the task identifier returned by async operations"`
}

// TaskStatus returns the state of a background task plus its last log lines.
func (c *Cluster) TaskStatus(ctx context.Context, in TaskInput) (Result, error) {
	node, err := security.NodeName(in.Node)
	if err != nil {
		return errorResult(err)
	}
	if in.UPID == "" {
		return failure(ErrCodeValidation, "upid is required"), nil
	}

	status, err := c.api.TaskStatus(ctx, node, in.UPID)
	if err != nil {
		return errorResult(err)
	}

	data := map[string]any{"upid": in.UPID, "task": status}
	if lines, err := c.api.TaskLog(ctx, node, in.UPID); err == nil {
		if len(lines) > 20 {
			lines = lines[len(lines)-20:]
		}
		data["log"] = lines
	} else {
		c.logger.Debug("task log unavailable", "upid", in.UPID, "error", err)
	}
	return success(data), nil
}
