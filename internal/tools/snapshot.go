package tools

import (
	"context"
	"fmt"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

// SnapshotAPI is the slice of the Proxmox client for snapshots, backups and
// firewall rules.
type SnapshotAPI interface {
	CreateSnapshot(ctx context.Context, node string, typ proxmox.GuestType, vmid int, name, description string) (string, error)
	Snapshots(ctx context.Context, node string, typ proxmox.GuestType, vmid int) ([]proxmox.Snapshot, error)
	RollbackSnapshot(ctx context.Context, node string, typ proxmox.GuestType, vmid int, name string) (string, error)
	DeleteSnapshot(ctx context.Context, node string, typ proxmox.GuestType, vmid int, name string) (string, error)
	Vzdump(ctx context.Context, node string, vmid int, storage, mode, compress string) (string, error)
	FirewallRules(ctx context.Context, node string, typ proxmox.GuestType, vmid int) ([]proxmox.FirewallRule, error)
	AddFirewallRule(ctx context.Context, node string, typ proxmox.GuestType, vmid int, rule proxmox.FirewallRule) error
}

// Snapshot manages point-in-time state: snapshots, backups and the per-guest
// firewall.
type Snapshot struct {
	api    SnapshotAPI
	logger log.Logger
}

// NewSnapshot creates the snapshot toolset.
func NewSnapshot(api SnapshotAPI, logger log.Logger) (*Snapshot, error) {
	if api == nil {
		return nil, fmt.Errorf("snapshot API is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Snapshot{api: api, logger: logger.With("toolset", "snapshot")}, nil
}

// SnapshotInput names a snapshot of a guest.
type SnapshotInput struct {
	Node        string `json:"node" jsonschema:"the cluster node name"`
	VMID        int    `json:"vmid" jsonschema:"the guest VMID"`
	Name        string `json:"name" jsonschema:"the snapshot name"`
	Description string `json:"description,omitempty" jsonschema:"optional snapshot description"`
}

func (in SnapshotInput) validate() (node, name string, err error) {
	if node, err = security.NodeName(in.Node); err != nil {
		return "", "", err
	}
	if in.VMID <= 0 {
		return "", "", fmt.Errorf("%w: vmid required", security.ErrInvalidInput)
	}
	if name, err = security.ConfigID(in.Name); err != nil {
		return "", "", err
	}
	return node, name, nil
}

// Create snapshots a VM.
func (s *Snapshot) Create(ctx context.Context, in SnapshotInput) (Result, error) {
	node, name, err := in.validate()
	if err != nil {
		return errorResult(err)
	}
	upid, err := s.api.CreateSnapshot(ctx, node, proxmox.GuestQemu, in.VMID, name, in.Description)
	if err != nil {
		return errorResult(err)
	}
	s.logger.Info("snapshot created", "vmid", in.VMID, "name", name)
	return success(map[string]any{"vmid": in.VMID, "name": name, "upid": upid}), nil
}

// List returns the snapshots of a VM. The synthetic "current" entry PVE
// appends is filtered out.
func (s *Snapshot) List(ctx context.Context, in GuestInput) (Result, error) {
	node, err := in.validate()
	if err != nil {
		return errorResult(err)
	}
	snaps, err := s.api.Snapshots(ctx, node, proxmox.GuestQemu, in.VMID)
	if err != nil {
		return errorResult(err)
	}

	named := snaps[:0]
	for _, sn := range snaps {
		if sn.Name != "current" {
			named = append(named, sn)
		}
	}
	return success(map[string]any{"vmid": in.VMID, "snapshots": named, "count": len(named)}), nil
}

// Rollback rolls a VM back to a snapshot.
func (s *Snapshot) Rollback(ctx context.Context, in SnapshotInput) (Result, error) {
	node, name, err := in.validate()
	if err != nil {
		return errorResult(err)
	}
	upid, err := s.api.RollbackSnapshot(ctx, node, proxmox.GuestQemu, in.VMID, name)
	if err != nil {
		return errorResult(err)
	}
	s.logger.Info("snapshot rollback", "vmid", in.VMID, "name", name)
	return success(map[string]any{"vmid": in.VMID, "name": name, "upid": upid}), nil
}

// Delete removes a snapshot.
func (s *Snapshot) Delete(ctx context.Context, in SnapshotInput) (Result, error) {
	node, name, err := in.validate()
	if err != nil {
		return errorResult(err)
	}
	upid, err := s.api.DeleteSnapshot(ctx, node, proxmox.GuestQemu, in.VMID, name)
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"vmid": in.VMID, "name": name, "upid": upid}), nil
}

// BackupInput starts a vzdump backup.
type BackupInput struct {
	Node        string `json:"node" jsonschema:"the cluster node name"`
	VMID        int    `json:"vmid" jsonschema:"the guest VMID"`
	Storage     string `json:"storage,omitempty" jsonschema:"target storage, default local"`
	Mode        string `json:"mode,omitempty" jsonschema:"backup mode: snapshot, suspend or stop; default snapshot"`
	Compression string `json:"compression,omitempty" jsonschema:"compression: zstd, gzip or lzo; default zstd"`
}

var backupModes = map[string]bool{"snapshot": true, "suspend": true, "stop": true}

// Backup starts a vzdump backup of a guest.
func (s *Snapshot) Backup(ctx context.Context, in BackupInput) (Result, error) {
	node, err := security.NodeName(in.Node)
	if err != nil {
		return errorResult(err)
	}
	if in.VMID <= 0 {
		return failure(ErrCodeValidation, "vmid is required"), nil
	}

	storage := in.Storage
	if storage == "" {
		storage = "local"
	}
	mode := in.Mode
	if mode == "" {
		mode = "snapshot"
	}
	if !backupModes[mode] {
		return failure(ErrCodeValidation, fmt.Sprintf("unknown backup mode %q", mode)), nil
	}
	compress := in.Compression
	if compress == "" {
		compress = "zstd"
	}

	upid, err := s.api.Vzdump(ctx, node, in.VMID, storage, mode, compress)
	if err != nil {
		return errorResult(err)
	}
	s.logger.Info("backup started", "vmid", in.VMID, "storage", storage, "mode", mode)
	return success(map[string]any{"vmid": in.VMID, "upid": upid, "mode": mode}), nil
}

// ListFirewallRules returns the firewall rules of a guest.
func (s *Snapshot) ListFirewallRules(ctx context.Context, in GuestInput) (Result, error) {
	node, err := in.validate()
	if err != nil {
		return errorResult(err)
	}
	rules, err := s.api.FirewallRules(ctx, node, proxmox.GuestQemu, in.VMID)
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{"vmid": in.VMID, "rules": rules, "count": len(rules)}), nil
}

// FirewallRuleInput appends one firewall rule to a guest.
type FirewallRuleInput struct {
	Node    string `json:"node" jsonschema:"the cluster node name"`
	VMID    int    `json:"vmid" jsonschema:"the guest VMID"`
	Type    string `json:"type" jsonschema:"rule direction: in or out"`
	Action  string `json:"action" jsonschema:"ACCEPT, DROP or REJECT"`
	Proto   string `json:"proto,omitempty" jsonschema:"protocol: tcp or udp"`
	DPort   string `json:"dport,omitempty" jsonschema:"destination port or range"`
	SPort   string `json:"sport,omitempty" jsonschema:"source port or range"`
	Comment string `json:"comment,omitempty" jsonschema:"optional rule comment"`
}

var (
	firewallDirections = map[string]bool{"in": true, "out": true}
	firewallActions    = map[string]bool{"ACCEPT": true, "DROP": true, "REJECT": true}
)

// AddFirewallRule appends an enabled firewall rule to a guest.
func (s *Snapshot) AddFirewallRule(ctx context.Context, in FirewallRuleInput) (Result, error) {
	node, err := security.NodeName(in.Node)
	if err != nil {
		return errorResult(err)
	}
	if in.VMID <= 0 {
		return failure(ErrCodeValidation, "vmid is required"), nil
	}
	if !firewallDirections[in.Type] {
		return failure(ErrCodeValidation, fmt.Sprintf("rule type %q, want in or out", in.Type)), nil
	}
	if !firewallActions[in.Action] {
		return failure(ErrCodeValidation, fmt.Sprintf("rule action %q, want ACCEPT, DROP or REJECT", in.Action)), nil
	}

	rule := proxmox.FirewallRule{
		Type:    in.Type,
		Action:  in.Action,
		Proto:   in.Proto,
		DPort:   in.DPort,
		SPort:   in.SPort,
		Comment: in.Comment,
	}
	if err := s.api.AddFirewallRule(ctx, node, proxmox.GuestQemu, in.VMID, rule); err != nil {
		return errorResult(err)
	}

	s.logger.Info("firewall rule added", "vmid", in.VMID, "action", in.Action, "dport", in.DPort)
	return success(map[string]any{"vmid": in.VMID, "rule": rule}), nil
}
