package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/provision"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

// CreateWorkflows is the provisioning surface behind the create tools.
type CreateWorkflows interface {
	CreateFromTemplate(ctx context.Context, req provision.CreateRequest) (*provision.CreateResult, error)
	CreateLXC(ctx context.Context, req provision.LXCRequest) (*provision.LXCResult, error)
}

// RestoreAPI restores guests from backup archives.
type RestoreAPI interface {
	QMRestore(ctx context.Context, node string, vmid int, archive, storage string) (string, error)
}

// Provision creates new guests.
type Provision struct {
	workflows CreateWorkflows
	restore   RestoreAPI
	logger    log.Logger
}

// NewProvision creates the provisioning toolset.
func NewProvision(workflows CreateWorkflows, restore RestoreAPI, logger log.Logger) (*Provision, error) {
	if workflows == nil {
		return nil, fmt.Errorf("workflows are required")
	}
	if restore == nil {
		return nil, fmt.Errorf("restore API is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Provision{workflows: workflows, restore: restore, logger: logger.With("toolset", "provision")}, nil
}

// CreateVMInput clones a template into a new VM.
type CreateVMInput struct {
	Node       string `json:"node" jsonschema:"the cluster node name"`
	TemplateID int    `json:"template_id" jsonschema:"VMID of the template to clone"`
	Name       string `json:"name" jsonschema:"name of the new VM"`
	VMID       int    `json:"vmid,omitempty" jsonschema:"VMID for the new VM, 0 auto-assigns"`
	IP         string `json:"ip,omitempty" jsonschema:"static IPv4 address, bare address gets /24 and a .1 gateway"`
	Cores      int    `json:"cores,omitempty" jsonschema:"CPU cores, 0 keeps the template default"`
	Memory     int    `json:"memory,omitempty" jsonschema:"memory in MB, 0 keeps the template default"`
	DiskSize   string `json:"disk_size,omitempty" jsonschema:"grow the boot disk to this size, e.g. 64G"`
	Password   string `json:"password,omitempty" jsonschema:"cloud-init password, empty generates one"`
}

// CreateVM provisions a VM from a template. The password appears in the
// response exactly once; it is not retrievable afterwards.
func (p *Provision) CreateVM(ctx context.Context, in CreateVMInput) (Result, error) {
	res, err := p.workflows.CreateFromTemplate(ctx, provision.CreateRequest{
		Node:       in.Node,
		TemplateID: in.TemplateID,
		Name:       in.Name,
		VMID:       in.VMID,
		IP:         in.IP,
		Cores:      in.Cores,
		Memory:     in.Memory,
		DiskSize:   in.DiskSize,
		Password:   in.Password,
	})
	if err != nil {
		r, rerr := errorResult(err)
		if rerr != nil {
			return Result{}, rerr
		}
		var stepErr *provision.StepError
		if errors.As(err, &stepErr) {
			r.Error.Details = map[string]any{"step": string(stepErr.Step)}
		}
		return r, nil
	}

	return success(map[string]any{
		"vmid":               res.VMID,
		"name":               res.Name,
		"node":               res.Node,
		"password":           res.Password,
		"generated_password": res.Generated,
		"resized_disk":       res.ResizedDisk,
		"agent_ready":        res.Ready,
	}), nil
}

// CreateLXCInput creates a container from an OS template.
type CreateLXCInput struct {
	Node       string `json:"node" jsonschema:"the cluster node name"`
	Hostname   string `json:"hostname" jsonschema:"hostname of the new container"`
	OSTemplate string `json:"ostemplate" jsonschema:"OS template volume, e.g. local:vztmpl/debian-12-standard_12.2-1_amd64.tar.zst"`
	VMID       int    `json:"vmid,omitempty" jsonschema:"VMID for the container, 0 auto-assigns"`
	Password   string `json:"password,omitempty" jsonschema:"root password, empty generates one"`
	Cores      int    `json:"cores,omitempty" jsonschema:"CPU cores, default 1"`
	Memory     int    `json:"memory,omitempty" jsonschema:"memory in MB, default 512"`
	Storage    string `json:"storage,omitempty" jsonschema:"storage pool, default local-lvm"`
	DiskSize   string `json:"disk_size,omitempty" jsonschema:"root filesystem size, default 8G"`
	Net0       string `json:"net0,omitempty" jsonschema:"network definition, default DHCP on vmbr0"`
}

// CreateLXC creates a container.
func (p *Provision) CreateLXC(ctx context.Context, in CreateLXCInput) (Result, error) {
	res, err := p.workflows.CreateLXC(ctx, provision.LXCRequest{
		Node:       in.Node,
		Hostname:   in.Hostname,
		OSTemplate: in.OSTemplate,
		VMID:       in.VMID,
		Password:   in.Password,
		Cores:      in.Cores,
		Memory:     in.Memory,
		Storage:    in.Storage,
		DiskSize:   in.DiskSize,
		Net0:       in.Net0,
	})
	if err != nil {
		return errorResult(err)
	}

	return success(map[string]any{
		"vmid":               res.VMID,
		"hostname":           res.Hostname,
		"password":           res.Password,
		"generated_password": res.Generated,
	}), nil
}

// RestoreBackupInput restores a VM from a backup archive.
type RestoreBackupInput struct {
	Node       string `json:"node" jsonschema:"the cluster node name"`
	VMID       int    `json:"vmid" jsonschema:"VMID to restore into"`
	BackupFile string `json:"backup_file" jsonschema:"backup volume id, e.g. local:backup/vzdump-qemu-101-....vma.zst"`
	Storage    string `json:"storage,omitempty" jsonschema:"target storage, default local-lvm"`
}

// RestoreBackup restores a VM from a vzdump archive.
func (p *Provision) RestoreBackup(ctx context.Context, in RestoreBackupInput) (Result, error) {
	node, err := security.NodeName(in.Node)
	if err != nil {
		return errorResult(err)
	}
	if in.VMID <= 0 || in.BackupFile == "" {
		return failure(ErrCodeValidation, "vmid and backup_file are required"), nil
	}
	storage := in.Storage
	if storage == "" {
		storage = "local-lvm"
	}

	upid, err := p.restore.QMRestore(ctx, node, in.VMID, in.BackupFile, storage)
	if err != nil {
		return errorResult(err)
	}

	p.logger.Info("restore started", "vmid", in.VMID, "archive", in.BackupFile)
	return success(map[string]any{"vmid": in.VMID, "upid": upid}), nil
}
