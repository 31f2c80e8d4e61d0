// Package provision implements multi-step guest provisioning workflows on
// top of the Proxmox API client. Steps run sequentially and the first
// failure aborts the workflow; there is no rollback, partially created
// guests are left for the operator to inspect.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

// Step identifies where in a workflow a failure happened.
type Step string

const (
	StepAssignID    Step = "assign-id"
	StepClone       Step = "clone"
	StepResizeDisk  Step = "resize-disk"
	StepCredentials Step = "credentials"
	StepNetwork     Step = "configure-network"
	StepStart       Step = "start"
	StepCreate      Step = "create"
)

// StepError wraps a workflow failure with the step that produced it.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}

// API is the slice of the Proxmox client the provisioner needs.
type API interface {
	ClusterVMIDs(ctx context.Context) (map[int]struct{}, error)
	CloneVM(ctx context.Context, node string, templateID, newID int, name string) (string, error)
	VMConfig(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (map[string]any, error)
	SetVMConfig(ctx context.Context, node string, typ proxmox.GuestType, vmid int, changes map[string]string) error
	ResizeDisk(ctx context.Context, node string, vmid int, disk, size string) error
	VMStatus(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (*proxmox.VMStatus, error)
	StartVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (string, error)
	RebootVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (string, error)
	DeleteVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int) (string, error)
	MigrateVM(ctx context.Context, node string, typ proxmox.GuestType, vmid int, target string, online bool) (string, error)
	CreateLXC(ctx context.Context, node string, vmid int, params map[string]string) (string, error)
	TaskStatus(ctx context.Context, node, upid string) (*proxmox.TaskStatus, error)
	AgentPing(ctx context.Context, node string, vmid int) error
}

// Provisioner runs provisioning workflows.
type Provisioner struct {
	api    API
	logger log.Logger

	taskPollInterval  time.Duration
	taskTimeout       time.Duration
	readyPollInterval time.Duration
	readyTimeout      time.Duration
}

// New returns a Provisioner with production polling intervals.
func New(api API, logger log.Logger) *Provisioner {
	return &Provisioner{
		api:    api,
		logger: logger.With("component", "provision"),

		taskPollInterval:  2 * time.Second,
		taskTimeout:       5 * time.Minute,
		readyPollInterval: 3 * time.Second,
		readyTimeout:      90 * time.Second,
	}
}

// vmidFloor is the lowest VMID the provisioner will assign. Proxmox reserves
// ids below 100 for internal use.
const vmidFloor = 100

// CreateRequest describes a VM to create from a template.
type CreateRequest struct {
	Node       string
	TemplateID int
	Name       string

	// VMID of the new guest; 0 assigns the lowest unused id.
	VMID int

	// IP is an optional static address. A bare address is completed to a
	// /24 with a .1 gateway. Empty leaves the template's (usually DHCP)
	// network config alone.
	IP string

	Cores  int
	Memory int // MB

	// DiskSize grows the boot disk, e.g. "64G". Empty keeps the template
	// size. Shrinking is rejected before any API call.
	DiskSize string

	// Password for the cloud-init user. Empty generates one.
	Password string
}

// CreateResult reports a completed creation. Password is returned exactly
// once and never logged; when Generated is false it echoes the caller's own
// password back.
type CreateResult struct {
	VMID      int
	Name      string
	Node      string
	Password  string
	Generated bool

	// ResizedDisk is the disk key that was grown, empty when no disk was
	// found or no resize was requested.
	ResizedDisk string

	// Ready reports whether the guest agent answered within the readiness
	// window. False is not an error; the VM is running either way.
	Ready bool
}

// CreateFromTemplate clones a template into a new VM, applies specs,
// credentials and network config, grows the disk and starts the guest.
func (p *Provisioner) CreateFromTemplate(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	node, err := security.NodeName(req.Node)
	if err != nil {
		return nil, stepErr(StepAssignID, err)
	}
	name, err := security.Hostname(req.Name)
	if err != nil {
		return nil, stepErr(StepAssignID, err)
	}
	if req.TemplateID <= 0 {
		return nil, stepErr(StepAssignID, fmt.Errorf("%w: template id required", security.ErrInvalidInput))
	}

	// Shrink rejection happens before the clone: a template disk size is
	// not knowable yet, but a malformed size string is.
	if req.DiskSize != "" {
		if _, err := parseDiskSize(req.DiskSize); err != nil {
			return nil, stepErr(StepResizeDisk, err)
		}
	}

	vmid := req.VMID
	if vmid == 0 {
		if vmid, err = p.assignID(ctx); err != nil {
			return nil, stepErr(StepAssignID, err)
		}
		p.logger.Info("assigned vmid", "vmid", vmid)
	}

	upid, err := p.api.CloneVM(ctx, node, req.TemplateID, vmid, name)
	if err != nil {
		return nil, stepErr(StepClone, err)
	}
	if err := p.waitTask(ctx, node, upid); err != nil {
		return nil, stepErr(StepClone, err)
	}

	result := &CreateResult{VMID: vmid, Name: name, Node: node}

	if req.DiskSize != "" {
		disk, err := p.resizeBootDisk(ctx, node, vmid, req.DiskSize)
		if err != nil {
			return nil, stepErr(StepResizeDisk, err)
		}
		result.ResizedDisk = disk
	}

	password := req.Password
	if password == "" {
		if password, err = GeneratePassword(); err != nil {
			return nil, stepErr(StepCredentials, err)
		}
		result.Generated = true
	}
	result.Password = password

	changes := map[string]string{"cipassword": password}
	if req.Cores > 0 {
		changes["cores"] = fmt.Sprintf("%d", req.Cores)
	}
	if req.Memory > 0 {
		changes["memory"] = fmt.Sprintf("%d", req.Memory)
	}
	if err := p.api.SetVMConfig(ctx, node, proxmox.GuestQemu, vmid, changes); err != nil {
		return nil, stepErr(StepCredentials, err)
	}

	if req.IP != "" {
		ipcfg, err := ipConfig(req.IP)
		if err != nil {
			return nil, stepErr(StepNetwork, err)
		}
		net := map[string]string{"ipconfig0": ipcfg}
		if err := p.api.SetVMConfig(ctx, node, proxmox.GuestQemu, vmid, net); err != nil {
			return nil, stepErr(StepNetwork, err)
		}
	}

	if _, err := p.api.StartVM(ctx, node, proxmox.GuestQemu, vmid); err != nil {
		return nil, stepErr(StepStart, err)
	}
	result.Ready = p.awaitAgent(ctx, node, vmid)

	p.logger.Info("vm created",
		"vmid", vmid, "node", node, "name", name,
		"ready", result.Ready, "generated_password", result.Generated)
	return result, nil
}

// assignID returns the lowest unused VMID at or above the floor.
func (p *Provisioner) assignID(ctx context.Context) (int, error) {
	used, err := p.api.ClusterVMIDs(ctx)
	if err != nil {
		return 0, err
	}
	candidate := vmidFloor
	for {
		if _, taken := used[candidate]; !taken {
			return candidate, nil
		}
		candidate++
	}
}

// diskBuses is the probe order for locating a guest's boot disk.
var diskBuses = []string{"scsi", "virtio", "sata", "ide"}

// resizeBootDisk finds the first attached disk and grows it to size. A VM
// without any disk skips the resize and returns "". A size smaller than the
// current disk is rejected without touching the API.
func (p *Provisioner) resizeBootDisk(ctx context.Context, node string, vmid int, size string) (string, error) {
	want, err := parseDiskSize(size)
	if err != nil {
		return "", err
	}

	cfg, err := p.api.VMConfig(ctx, node, proxmox.GuestQemu, vmid)
	if err != nil {
		return "", err
	}

	var disk, value string
	for _, bus := range diskBuses {
		for i := 0; i < 6; i++ {
			key := fmt.Sprintf("%s%d", bus, i)
			raw, ok := cfg[key]
			if !ok {
				continue
			}
			if s, ok := raw.(string); ok {
				disk, value = key, s
			}
			break
		}
		if disk != "" {
			break
		}
	}
	if disk == "" {
		p.logger.Warn("disk resize skipped, no disk found", "vmid", vmid)
		return "", nil
	}

	if current, ok := currentDiskSize(value); ok && want < current {
		return "", fmt.Errorf("%w: disk %s is %s, shrink to %s refused",
			security.ErrInvalidInput, disk, formatSize(current), size)
	}

	if err := p.api.ResizeDisk(ctx, node, vmid, disk, size); err != nil {
		return "", err
	}
	return disk, nil
}

// ipConfig renders a cloud-init ipconfig0 value. A bare address becomes a
// /24 with the network's .1 as gateway.
func ipConfig(ip string) (string, error) {
	addr := ip
	if !strings.Contains(addr, "/") {
		addr += "/24"
	}
	host := addr[:strings.Index(addr, "/")]
	if _, err := security.Hostname(host); err != nil {
		return "", err
	}
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("%w: %q is not an IPv4 address", security.ErrInvalidInput, ip)
	}
	gw := strings.Join(parts[:3], ".") + ".1"
	return fmt.Sprintf("ip=%s,gw=%s", addr, gw), nil
}

// waitTask polls a background task until it finishes, failing on a non-OK
// exit status.
func (p *Provisioner) waitTask(ctx context.Context, node, upid string) error {
	ctx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	ticker := time.NewTicker(p.taskPollInterval)
	defer ticker.Stop()

	for {
		status, err := p.api.TaskStatus(ctx, node, upid)
		if err != nil {
			return err
		}
		if status.Status == "stopped" {
			if status.ExitStatus != "OK" {
				return fmt.Errorf("task %s failed: %s", upid, status.ExitStatus)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("task %s: %w", upid, ctx.Err())
		case <-ticker.C:
		}
	}
}

// awaitAgent polls the guest agent until it answers or the readiness window
// closes. A timeout is not an error.
func (p *Provisioner) awaitAgent(ctx context.Context, node string, vmid int) bool {
	ctx, cancel := context.WithTimeout(ctx, p.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(p.readyPollInterval)
	defer ticker.Stop()

	for {
		if err := p.api.AgentPing(ctx, node, vmid); err == nil {
			return true
		} else if !errors.Is(err, proxmox.ErrAgentNotRunning) && ctx.Err() == nil {
			p.logger.Debug("agent readiness probe failed", "vmid", vmid, "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Warn("guest agent not ready within window", "vmid", vmid, "node", node)
			return false
		case <-ticker.C:
		}
	}
}

// Delete removes a guest, probing the VM endpoint first and the container
// endpoint second, matching how guests are addressed by bare VMID.
func (p *Provisioner) Delete(ctx context.Context, node string, vmid int) (proxmox.GuestType, error) {
	node, err := security.NodeName(node)
	if err != nil {
		return "", err
	}

	if _, err := p.api.DeleteVM(ctx, node, proxmox.GuestQemu, vmid); err == nil {
		p.logger.Info("vm deleted", "vmid", vmid, "node", node)
		return proxmox.GuestQemu, nil
	}
	if _, err := p.api.DeleteVM(ctx, node, proxmox.GuestLXC, vmid); err != nil {
		return "", fmt.Errorf("delete guest %d: %w", vmid, err)
	}
	p.logger.Info("lxc deleted", "vmid", vmid, "node", node)
	return proxmox.GuestLXC, nil
}

// UpdateRequest changes VM specs in place.
type UpdateRequest struct {
	Node   string
	VMID   int
	Cores  int // 0 leaves cores alone
	Memory int // MB, 0 leaves memory alone
}

// UpdateResult reports the applied changes and the power action taken.
type UpdateResult struct {
	VMID    int
	Changes map[string]string

	// Action is "rebooted" when the VM was running, "started" otherwise.
	Action string
}

// UpdateSpecs applies cores/memory changes and cycles the guest so they take
// effect: a running VM is rebooted, a stopped one started.
func (p *Provisioner) UpdateSpecs(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	node, err := security.NodeName(req.Node)
	if err != nil {
		return nil, err
	}
	if req.Cores <= 0 && req.Memory <= 0 {
		return nil, fmt.Errorf("%w: no changes requested", security.ErrInvalidInput)
	}

	status, err := p.api.VMStatus(ctx, node, proxmox.GuestQemu, req.VMID)
	if err != nil {
		return nil, err
	}

	changes := map[string]string{}
	if req.Cores > 0 {
		changes["cores"] = fmt.Sprintf("%d", req.Cores)
	}
	if req.Memory > 0 {
		changes["memory"] = fmt.Sprintf("%d", req.Memory)
	}
	if err := p.api.SetVMConfig(ctx, node, proxmox.GuestQemu, req.VMID, changes); err != nil {
		return nil, err
	}

	result := &UpdateResult{VMID: req.VMID, Changes: changes}
	if status.Status == "running" {
		if _, err := p.api.RebootVM(ctx, node, proxmox.GuestQemu, req.VMID); err != nil {
			return nil, err
		}
		result.Action = "rebooted"
	} else {
		if _, err := p.api.StartVM(ctx, node, proxmox.GuestQemu, req.VMID); err != nil {
			return nil, err
		}
		result.Action = "started"
	}

	p.logger.Info("vm specs updated", "vmid", req.VMID, "action", result.Action)
	return result, nil
}

// Migrate moves a guest to another node, live for VMs and restart-mode for
// containers. Guest type is probed the same way Delete does.
func (p *Provisioner) Migrate(ctx context.Context, node string, vmid int, target string, online bool) (string, error) {
	node, err := security.NodeName(node)
	if err != nil {
		return "", err
	}
	target, err = security.NodeName(target)
	if err != nil {
		return "", err
	}

	upid, err := p.api.MigrateVM(ctx, node, proxmox.GuestQemu, vmid, target, online)
	if err == nil {
		p.logger.Info("migration started", "vmid", vmid, "target", target)
		return upid, nil
	}
	upid, err = p.api.MigrateVM(ctx, node, proxmox.GuestLXC, vmid, target, online)
	if err != nil {
		return "", fmt.Errorf("migrate guest %d: %w", vmid, err)
	}
	p.logger.Info("migration started", "vmid", vmid, "target", target)
	return upid, nil
}

// LXCRequest describes a container to create.
type LXCRequest struct {
	Node       string
	Hostname   string
	OSTemplate string

	// VMID 0 assigns the lowest unused id.
	VMID int

	// Password empty generates one.
	Password string

	Cores    int    // default 1
	Memory   int    // MB, default 512
	Storage  string // default "local-lvm"
	DiskSize string // default "8G"
	Net0     string // default DHCP on vmbr0
}

// LXCResult reports a created container.
type LXCResult struct {
	VMID      int
	Hostname  string
	Password  string
	Generated bool
}

// CreateLXC creates a container from an OS template with sensible defaults.
func (p *Provisioner) CreateLXC(ctx context.Context, req LXCRequest) (*LXCResult, error) {
	node, err := security.NodeName(req.Node)
	if err != nil {
		return nil, stepErr(StepCreate, err)
	}
	hostname, err := security.Hostname(req.Hostname)
	if err != nil {
		return nil, stepErr(StepCreate, err)
	}
	if req.OSTemplate == "" {
		return nil, stepErr(StepCreate, fmt.Errorf("%w: ostemplate required", security.ErrInvalidInput))
	}

	vmid := req.VMID
	if vmid == 0 {
		if vmid, err = p.assignID(ctx); err != nil {
			return nil, stepErr(StepAssignID, err)
		}
	}

	result := &LXCResult{VMID: vmid, Hostname: hostname}
	password := req.Password
	if password == "" {
		if password, err = GeneratePassword(); err != nil {
			return nil, stepErr(StepCredentials, err)
		}
		result.Generated = true
	}
	result.Password = password

	cores, memory := req.Cores, req.Memory
	if cores <= 0 {
		cores = 1
	}
	if memory <= 0 {
		memory = 512
	}
	storage := req.Storage
	if storage == "" {
		storage = "local-lvm"
	}
	diskSize := req.DiskSize
	if diskSize == "" {
		diskSize = "8G"
	}
	rootfs, err := rootfsSpec(storage, diskSize)
	if err != nil {
		return nil, stepErr(StepCreate, err)
	}
	net0 := req.Net0
	if net0 == "" {
		net0 = "name=eth0,bridge=vmbr0,ip=dhcp"
	}

	params := map[string]string{
		"hostname":   hostname,
		"password":   password,
		"ostemplate": req.OSTemplate,
		"cores":      fmt.Sprintf("%d", cores),
		"memory":     fmt.Sprintf("%d", memory),
		"storage":    storage,
		"rootfs":     rootfs,
		"net0":       net0,
	}

	upid, err := p.api.CreateLXC(ctx, node, vmid, params)
	if err != nil {
		return nil, stepErr(StepCreate, err)
	}
	if err := p.waitTask(ctx, node, upid); err != nil {
		return nil, stepErr(StepCreate, err)
	}

	p.logger.Info("lxc created", "vmid", vmid, "node", node,
		"hostname", hostname, "generated_password", result.Generated)
	return result, nil
}

// rootfsSpec renders the rootfs parameter: the PVE create API wants
// "<storage>:<gib>".
func rootfsSpec(storage, size string) (string, error) {
	bytes, err := parseDiskSize(size)
	if err != nil {
		return "", err
	}
	gib := bytes / (1 << 30)
	if gib == 0 {
		gib = 1
	}
	return fmt.Sprintf("%s:%d", storage, gib), nil
}
