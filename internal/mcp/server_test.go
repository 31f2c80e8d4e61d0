package mcp

import (
	"context"
	"testing"

	"github.com/vmforge/proxmox-mcp/internal/guest"
	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/provision"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
	"github.com/vmforge/proxmox-mcp/internal/tools"
)

// stubAPI satisfies every toolset dependency with empty answers; the tests
// here only exercise server construction and tool registration.
type stubAPI struct{}

func (stubAPI) Nodes(context.Context) ([]proxmox.Node, error) { return nil, nil }
func (stubAPI) NodeGuests(context.Context, string, proxmox.GuestType) ([]proxmox.VM, error) {
	return nil, nil
}
func (stubAPI) VMStatus(context.Context, string, proxmox.GuestType, int) (*proxmox.VMStatus, error) {
	return &proxmox.VMStatus{}, nil
}
func (stubAPI) VMConfig(context.Context, string, proxmox.GuestType, int) (map[string]any, error) {
	return nil, nil
}
func (stubAPI) Storages(context.Context, string) ([]proxmox.Storage, error) { return nil, nil }
func (stubAPI) StorageContents(context.Context, string, string, string) ([]proxmox.StorageContent, error) {
	return nil, nil
}
func (stubAPI) TaskStatus(context.Context, string, string) (*proxmox.TaskStatus, error) {
	return &proxmox.TaskStatus{}, nil
}
func (stubAPI) TaskLog(context.Context, string, string) ([]proxmox.TaskLogLine, error) {
	return nil, nil
}
func (stubAPI) StartVM(context.Context, string, proxmox.GuestType, int) (string, error) {
	return "", nil
}
func (stubAPI) ShutdownVM(context.Context, string, proxmox.GuestType, int) (string, error) {
	return "", nil
}
func (stubAPI) StopVM(context.Context, string, proxmox.GuestType, int) (string, error) {
	return "", nil
}
func (stubAPI) RebootVM(context.Context, string, proxmox.GuestType, int) (string, error) {
	return "", nil
}
func (stubAPI) QMRestore(context.Context, string, int, string, string) (string, error) {
	return "", nil
}
func (stubAPI) CreateSnapshot(context.Context, string, proxmox.GuestType, int, string, string) (string, error) {
	return "", nil
}
func (stubAPI) Snapshots(context.Context, string, proxmox.GuestType, int) ([]proxmox.Snapshot, error) {
	return nil, nil
}
func (stubAPI) RollbackSnapshot(context.Context, string, proxmox.GuestType, int, string) (string, error) {
	return "", nil
}
func (stubAPI) DeleteSnapshot(context.Context, string, proxmox.GuestType, int, string) (string, error) {
	return "", nil
}
func (stubAPI) Vzdump(context.Context, string, int, string, string, string) (string, error) {
	return "", nil
}
func (stubAPI) FirewallRules(context.Context, string, proxmox.GuestType, int) ([]proxmox.FirewallRule, error) {
	return nil, nil
}
func (stubAPI) AddFirewallRule(context.Context, string, proxmox.GuestType, int, proxmox.FirewallRule) error {
	return nil
}

type stubWorkflows struct{}

func (stubWorkflows) Delete(context.Context, string, int) (proxmox.GuestType, error) {
	return proxmox.GuestQemu, nil
}
func (stubWorkflows) UpdateSpecs(context.Context, provision.UpdateRequest) (*provision.UpdateResult, error) {
	return &provision.UpdateResult{}, nil
}
func (stubWorkflows) Migrate(context.Context, string, int, string, bool) (string, error) {
	return "", nil
}
func (stubWorkflows) CreateFromTemplate(context.Context, provision.CreateRequest) (*provision.CreateResult, error) {
	return &provision.CreateResult{}, nil
}
func (stubWorkflows) CreateLXC(context.Context, provision.LXCRequest) (*provision.LXCResult, error) {
	return &provision.LXCResult{}, nil
}

type stubRunner struct{}

func (stubRunner) Run(context.Context, guest.Target, guest.Operation, guest.Credentials) (*guest.Result, error) {
	return &guest.Result{}, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	logger := log.NewNop()

	cluster, err := tools.NewCluster(stubAPI{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	lifecycle, err := tools.NewLifecycle(stubAPI{}, stubWorkflows{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	guestOps, err := tools.NewGuestOps(stubRunner{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	prov, err := tools.NewProvision(stubWorkflows{}, stubAPI{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := tools.NewSnapshot(stubAPI{}, logger)
	if err != nil {
		t.Fatal(err)
	}

	return Config{
		Name:      "proxmox-mcp",
		Version:   "test",
		Cluster:   cluster,
		Lifecycle: lifecycle,
		GuestOps:  guestOps,
		Provision: prov,
		Snapshot:  snap,
		Logger:    logger,
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if s.Handler() == nil {
		t.Error("Handler() = nil")
	}
}

func TestNewServerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"missing version", func(c *Config) { c.Version = "" }},
		{"missing cluster toolset", func(c *Config) { c.Cluster = nil }},
		{"missing guest toolset", func(c *Config) { c.GuestOps = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if _, err := NewServer(cfg); err == nil {
				t.Error("NewServer() error = nil, want error")
			}
		})
	}
}
