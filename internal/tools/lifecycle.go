package tools

import (
	"context"
	"fmt"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/provision"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
)

// PowerAPI is the slice of the Proxmox client that power actions need.
type PowerAPI interface {
	StartVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (string, error)
	ShutdownVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (string, error)
	StopVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (string, error)
	RebootVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (string, error)
}

// Workflows is the provisioning surface lifecycle tools delegate to.
type Workflows interface {
	Delete(ctx context.Context, node string, vmid int) (proxmox.GuestType, error)
	UpdateSpecs(ctx context.Context, req provision.UpdateRequest) (*provision.UpdateResult, error)
	Migrate(ctx context.Context, node string, vmid int, target string, online bool) (string, error)
}

// Lifecycle starts, stops and reshapes guests.
type Lifecycle struct {
	api       PowerAPI
	workflows Workflows
	logger    log.Logger
}

// NewLifecycle creates the lifecycle toolset.
func NewLifecycle(api PowerAPI, workflows Workflows, logger log.Logger) (*Lifecycle, error) {
	if api == nil {
		return nil, fmt.Errorf("power API is required")
	}
	if workflows == nil {
		return nil, fmt.Errorf("workflows are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Lifecycle{api: api, workflows: workflows, logger: logger.With("toolset", "lifecycle")}, nil
}

type powerAction func(context.Context, string, proxmox.GuestType, int) (string, error)

// power runs an action against the VM endpoint first, then the container
// endpoint. Guests are addressed by bare VMID, so the type has to be probed.
func (l *Lifecycle) power(ctx context.Context, in GuestInput, name string, action powerAction) (Result, error) {
	node, err := in.validate()
	if err != nil {
		return errorResult(err)
	}

	typ := proxmox.GuestQemu
	upid, err := action(ctx, node, typ, in.VMID)
	if err != nil {
		typ = proxmox.GuestLXC
		if upid, err = action(ctx, node, typ, in.VMID); err != nil {
			return errorResult(err)
		}
	}

	l.logger.Info("power action", "action", name, "vmid", in.VMID, "type", typ)
	return success(map[string]any{
		"action": name,
		"vmid":   in.VMID,
		"type":   typ,
		"upid":   upid,
	}), nil
}

// Start powers on a guest.
func (l *Lifecycle) Start(ctx context.Context, in GuestInput) (Result, error) {
	return l.power(ctx, in, "start", l.api.StartVM)
}

// Shutdown asks the guest OS to shut down cleanly.
func (l *Lifecycle) Shutdown(ctx context.Context, in GuestInput) (Result, error) {
	return l.power(ctx, in, "shutdown", l.api.ShutdownVM)
}

// Stop hard-stops a guest.
func (l *Lifecycle) Stop(ctx context.Context, in GuestInput) (Result, error) {
	return l.power(ctx, in, "stop", l.api.StopVM)
}

// Reboot restarts a guest.
func (l *Lifecycle) Reboot(ctx context.Context, in GuestInput) (Result, error) {
	return l.power(ctx, in, "reboot", l.api.RebootVM)
}

// Delete removes a stopped guest.
func (l *Lifecycle) Delete(ctx context.Context, in GuestInput) (Result, error) {
	if _, err := in.validate(); err != nil {
		return errorResult(err)
	}
	typ, err := l.workflows.Delete(ctx, in.Node, in.VMID)
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"deleted": in.VMID, "type": typ}), nil
}

// UpdateSpecsInput changes VM sizing.
type UpdateSpecsInput struct {
	Node   string `json:"node" jsonschema:"the cluster node name"`
	VMID   int    `json:"vmid" jsonschema:"the guest VMID"`
	Cores  int    `json:"cores,omitempty" jsonschema:"new CPU core count, 0 keeps current"`
	Memory int    `json:"memory,omitempty" jsonschema:"new memory in MB, 0 keeps current"`
}

// UpdateSpecs resizes a VM and cycles it so the change takes effect.
func (l *Lifecycle) UpdateSpecs(ctx context.Context, in UpdateSpecsInput) (Result, error) {
	res, err := l.workflows.UpdateSpecs(ctx, provision.UpdateRequest{
		Node: in.Node, VMID: in.VMID, Cores: in.Cores, Memory: in.Memory,
	})
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{
		"vmid":    res.VMID,
		"changes": res.Changes,
		"action":  res.Action,
	}), nil
}

// MigrateInput moves a guest between nodes.
type MigrateInput struct {
	Node       string `json:"node" jsonschema:"the source node name"`
	VMID       int    `json:"vmid" jsonschema:"the guest VMID"`
	TargetNode string `json:"target_node" jsonschema:"the destination node name"`
	Online     bool   `json:"online,omitempty" jsonschema:"live-migrate a running VM (restart mode for containers)"`
}

// Migrate moves a guest to another node.
func (l *Lifecycle) Migrate(ctx context.Context, in MigrateInput) (Result, error) {
	upid, err := l.workflows.Migrate(ctx, in.Node, in.VMID, in.TargetNode, in.Online)
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{
		"vmid":   in.VMID,
		"target": in.TargetNode,
		"upid":   upid,
	}), nil
}
