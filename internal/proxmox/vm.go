package proxmox

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

func guestPath(node string, typ GuestType, vmid int, suffix string) string {
	return fmt.Sprintf("/nodes/%s/%s/%d%s", node, typ, vmid, suffix)
}

// VMStatus returns the current status of a guest.
func (c *Client) VMStatus(ctx context.Context, node string, typ GuestType, vmid int) (*VMStatus, error) {
	var status VMStatus
	if err := c.get(ctx, guestPath(node, typ, vmid, "/status/current"), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// statusAction posts a power action (start, shutdown, stop, reboot).
// Returns the task UPID.
func (c *Client) statusAction(ctx context.Context, node string, typ GuestType, vmid int, action string) (string, error) {
	var upid string
	if err := c.post(ctx, guestPath(node, typ, vmid, "/status/"+action), nil, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// StartVM powers on a guest.
func (c *Client) StartVM(ctx context.Context, node string, typ GuestType, vmid int) (string, error) {
	return c.statusAction(ctx, node, typ, vmid, "start")
}

// ShutdownVM asks the guest OS to shut down cleanly.
func (c *Client) ShutdownVM(ctx context.Context, node string, typ GuestType, vmid int) (string, error) {
	return c.statusAction(ctx, node, typ, vmid, "shutdown")
}

// StopVM hard-stops a guest.
func (c *Client) StopVM(ctx context.Context, node string, typ GuestType, vmid int) (string, error) {
	return c.statusAction(ctx, node, typ, vmid, "stop")
}

// RebootVM reboots a guest.
func (c *Client) RebootVM(ctx context.Context, node string, typ GuestType, vmid int) (string, error) {
	return c.statusAction(ctx, node, typ, vmid, "reboot")
}

// VMConfig returns the guest configuration key/value map.
func (c *Client) VMConfig(ctx context.Context, node string, typ GuestType, vmid int) (map[string]any, error) {
	var cfg map[string]any
	if err := c.get(ctx, guestPath(node, typ, vmid, "/config"), nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetVMConfig applies configuration changes (cores, memory, cipassword,
// ipconfig0, ...) to a guest.
func (c *Client) SetVMConfig(ctx context.Context, node string, typ GuestType, vmid int, changes map[string]string) error {
	form := url.Values{}
	for k, v := range changes {
		form.Set(k, v)
	}
	return c.post(ctx, guestPath(node, typ, vmid, "/config"), form, nil)
}

// CloneVM performs a full clone of a template (or VM) to newID. Returns the
// task UPID.
func (c *Client) CloneVM(ctx context.Context, node string, templateID, newID int, name string) (string, error) {
	form := url.Values{}
	form.Set("newid", strconv.Itoa(newID))
	form.Set("full", "1")
	if name != "" {
		form.Set("name", name)
	}

	var upid string
	if err := c.post(ctx, guestPath(node, GuestQemu, templateID, "/clone"), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// ResizeDisk grows a disk to the given size (e.g. "64G"). Proxmox itself
// rejects shrink requests; callers are expected to have filtered them out
// already.
func (c *Client) ResizeDisk(ctx context.Context, node string, vmid int, disk, size string) error {
	form := url.Values{}
	form.Set("disk", disk)
	form.Set("size", size)
	return c.put(ctx, guestPath(node, GuestQemu, vmid, "/resize"), form, nil)
}

// DeleteVM removes a guest. The guest must be stopped.
func (c *Client) DeleteVM(ctx context.Context, node string, typ GuestType, vmid int) (string, error) {
	var upid string
	if err := c.delete(ctx, guestPath(node, typ, vmid, ""), &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// MigrateVM moves a guest to another node. For VMs "online" requests a live
// migration; for containers it maps to a restart migration.
func (c *Client) MigrateVM(ctx context.Context, node string, typ GuestType, vmid int, target string, online bool) (string, error) {
	form := url.Values{}
	form.Set("target", target)
	flag := "0"
	if online {
		flag = "1"
	}
	if typ == GuestLXC {
		form.Set("restart", flag)
	} else {
		form.Set("online", flag)
	}

	var upid string
	if err := c.post(ctx, guestPath(node, typ, vmid, "/migrate"), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// CreateLXC creates a new container from an OS template.
func (c *Client) CreateLXC(ctx context.Context, node string, vmid int, params map[string]string) (string, error) {
	form := url.Values{}
	form.Set("vmid", strconv.Itoa(vmid))
	for k, v := range params {
		form.Set(k, v)
	}

	var upid string
	if err := c.post(ctx, fmt.Sprintf("/nodes/%s/lxc", node), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// CreateSnapshot snapshots a guest.
func (c *Client) CreateSnapshot(ctx context.Context, node string, typ GuestType, vmid int, name, description string) (string, error) {
	form := url.Values{}
	form.Set("snapname", name)
	if description != "" {
		form.Set("description", description)
	}

	var upid string
	if err := c.post(ctx, guestPath(node, typ, vmid, "/snapshot"), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// Snapshots lists the snapshots of a guest.
func (c *Client) Snapshots(ctx context.Context, node string, typ GuestType, vmid int) ([]Snapshot, error) {
	var snaps []Snapshot
	if err := c.get(ctx, guestPath(node, typ, vmid, "/snapshot"), nil, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// RollbackSnapshot rolls a guest back to a named snapshot.
func (c *Client) RollbackSnapshot(ctx context.Context, node string, typ GuestType, vmid int, name string) (string, error) {
	var upid string
	path := guestPath(node, typ, vmid, "/snapshot/"+url.PathEscape(name)+"/rollback")
	if err := c.post(ctx, path, nil, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// DeleteSnapshot removes a named snapshot.
func (c *Client) DeleteSnapshot(ctx context.Context, node string, typ GuestType, vmid int, name string) (string, error) {
	var upid string
	path := guestPath(node, typ, vmid, "/snapshot/"+url.PathEscape(name))
	if err := c.delete(ctx, path, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// Vzdump starts a backup of a guest. Returns the task UPID.
func (c *Client) Vzdump(ctx context.Context, node string, vmid int, storage, mode, compress string) (string, error) {
	form := url.Values{}
	form.Set("vmid", strconv.Itoa(vmid))
	form.Set("storage", storage)
	form.Set("mode", mode)
	form.Set("compress", compress)

	var upid string
	if err := c.post(ctx, fmt.Sprintf("/nodes/%s/vzdump", node), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// QMRestore restores a VM from a backup archive volume.
func (c *Client) QMRestore(ctx context.Context, node string, vmid int, archive, storage string) (string, error) {
	form := url.Values{}
	form.Set("vmid", strconv.Itoa(vmid))
	form.Set("archive", archive)
	form.Set("storage", storage)

	var upid string
	if err := c.post(ctx, fmt.Sprintf("/nodes/%s/qmrestore", node), form, &upid); err != nil {
		return "", err
	}
	return upid, nil
}

// FirewallRules lists the firewall rules of a guest.
func (c *Client) FirewallRules(ctx context.Context, node string, typ GuestType, vmid int) ([]FirewallRule, error) {
	var rules []FirewallRule
	if err := c.get(ctx, guestPath(node, typ, vmid, "/firewall/rules"), nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// AddFirewallRule appends an enabled firewall rule to a guest.
func (c *Client) AddFirewallRule(ctx context.Context, node string, typ GuestType, vmid int, rule FirewallRule) error {
	form := url.Values{}
	form.Set("type", rule.Type)
	form.Set("action", rule.Action)
	form.Set("enable", "1")
	if rule.Proto != "" {
		form.Set("proto", rule.Proto)
	}
	if rule.DPort != "" {
		form.Set("dport", rule.DPort)
	}
	if rule.SPort != "" {
		form.Set("sport", rule.SPort)
	}
	if rule.Comment != "" {
		form.Set("comment", rule.Comment)
	}
	return c.post(ctx, guestPath(node, typ, vmid, "/firewall/rules"), form, nil)
}
