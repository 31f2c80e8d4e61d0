package tools

import (
	"context"
	"testing"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/provision"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

type fakeCreateWorkflows struct {
	vm     *provision.CreateResult
	vmErr  error
	lxc    *provision.LXCResult
	lxcErr error
}

func (f *fakeCreateWorkflows) CreateFromTemplate(context.Context, provision.CreateRequest) (*provision.CreateResult, error) {
	return f.vm, f.vmErr
}

func (f *fakeCreateWorkflows) CreateLXC(context.Context, provision.LXCRequest) (*provision.LXCResult, error) {
	return f.lxc, f.lxcErr
}

type fakeRestoreAPI struct {
	archive string
	storage string
}

func (f *fakeRestoreAPI) QMRestore(_ context.Context, _ string, _ int, archive, storage string) (string, error) {
	f.archive, f.storage = archive, storage
	return "UPID:pve:restore", nil
}

func newProvisionToolset(t *testing.T, wf CreateWorkflows, restore RestoreAPI) *Provision {
	t.Helper()
	p, err := NewProvision(wf, restore, log.NewNop())
	if err != nil {
		t.Fatalf("NewProvision() error = %v", err)
	}
	return p
}

func TestProvisionCreateVM(t *testing.T) {
	wf := &fakeCreateWorkflows{vm: &provision.CreateResult{
		VMID:      150,
		Name:      "web-01",
		Node:      "pve1",
		Password:  "s3cret!A",
		Generated: true,
		Ready:     true,
	}}
	p := newProvisionToolset(t, wf, &fakeRestoreAPI{})

	result, err := p.CreateVM(context.Background(), CreateVMInput{
		Node: "pve1", TemplateID: 9000, Name: "web-01",
	})
	if err != nil {
		t.Fatalf("CreateVM() error = %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("Status = %q: %+v", result.Status, result.Error)
	}

	data := result.Data.(map[string]any)
	if data["vmid"] != 150 || data["password"] != "s3cret!A" || data["generated_password"] != true {
		t.Errorf("data = %v", data)
	}
}

func TestProvisionCreateVMStepFailure(t *testing.T) {
	wf := &fakeCreateWorkflows{vmErr: &provision.StepError{
		Step: provision.StepResizeDisk,
		Err:  security.ErrInvalidInput,
	}}
	p := newProvisionToolset(t, wf, &fakeRestoreAPI{})

	result, err := p.CreateVM(context.Background(), CreateVMInput{
		Node: "pve1", TemplateID: 9000, Name: "web-01", DiskSize: "8G",
	})
	if err != nil {
		t.Fatalf("CreateVM() error = %v", err)
	}
	if result.Error == nil || result.Error.Code != ErrCodeValidation {
		t.Fatalf("result = %+v, want validation error", result)
	}
	if result.Error.Details["step"] != string(provision.StepResizeDisk) {
		t.Errorf("details = %v, want failing step", result.Error.Details)
	}
}

func TestProvisionCreateLXC(t *testing.T) {
	wf := &fakeCreateWorkflows{lxc: &provision.LXCResult{
		VMID:      201,
		Hostname:  "ct-01",
		Password:  "generated",
		Generated: true,
	}}
	p := newProvisionToolset(t, wf, &fakeRestoreAPI{})

	result, err := p.CreateLXC(context.Background(), CreateLXCInput{
		Node: "pve1", Hostname: "ct-01",
		OSTemplate: "local:vztmpl/debian-12-standard_12.2-1_amd64.tar.zst",
	})
	if err != nil {
		t.Fatalf("CreateLXC() error = %v", err)
	}
	data := result.Data.(map[string]any)
	if data["vmid"] != 201 || data["hostname"] != "ct-01" {
		t.Errorf("data = %v", data)
	}
}

func TestProvisionRestoreBackup(t *testing.T) {
	restore := &fakeRestoreAPI{}
	p := newProvisionToolset(t, &fakeCreateWorkflows{}, restore)

	result, err := p.RestoreBackup(context.Background(), RestoreBackupInput{
		Node: "pve1", VMID: 101,
		BackupFile: "local:backup/vzdump-qemu-101.vma.zst",
	})
	if err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("Status = %q: %+v", result.Status, result.Error)
	}
	if restore.storage != "local-lvm" {
		t.Errorf("storage = %q, want default local-lvm", restore.storage)
	}
}

func TestProvisionRestoreBackupValidation(t *testing.T) {
	p := newProvisionToolset(t, &fakeCreateWorkflows{}, &fakeRestoreAPI{})

	result, err := p.RestoreBackup(context.Background(), RestoreBackupInput{Node: "pve1", VMID: 101})
	if err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}
	if result.Error == nil || result.Error.Code != ErrCodeValidation {
		t.Errorf("result = %+v, want validation error", result)
	}
}
