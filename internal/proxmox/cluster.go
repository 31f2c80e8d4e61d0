package proxmox

import (
	"context"
	"fmt"
	"net/url"
)

// Nodes lists all cluster nodes.
func (c *Client) Nodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if err := c.get(ctx, "/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// NodeGuests lists the guests of the given type on a node.
func (c *Client) NodeGuests(ctx context.Context, node string, typ GuestType) ([]VM, error) {
	var vms []VM
	if err := c.get(ctx, fmt.Sprintf("/nodes/%s/%s", node, typ), nil, &vms); err != nil {
		return nil, err
	}
	return vms, nil
}

// ClusterVMIDs returns every VMID in use cluster-wide, across both VMs and
// containers.
func (c *Client) ClusterVMIDs(ctx context.Context) (map[int]struct{}, error) {
	form := url.Values{}
	form.Set("type", "vm")

	var resources []ClusterResource
	if err := c.get(ctx, "/cluster/resources", form, &resources); err != nil {
		return nil, err
	}

	ids := make(map[int]struct{}, len(resources))
	for _, r := range resources {
		if r.VMID > 0 {
			ids[r.VMID] = struct{}{}
		}
	}
	return ids, nil
}

// Storages lists storage usage on a node.
func (c *Client) Storages(ctx context.Context, node string) ([]Storage, error) {
	var storages []Storage
	if err := c.get(ctx, fmt.Sprintf("/nodes/%s/storage", node), nil, &storages); err != nil {
		return nil, err
	}
	return storages, nil
}

// StorageContents lists volumes on a storage, optionally filtered by content
// type ("iso", "vztmpl", "backup"). Empty filter lists everything.
func (c *Client) StorageContents(ctx context.Context, node, storage, contentType string) ([]StorageContent, error) {
	var form url.Values
	if contentType != "" {
		form = url.Values{}
		form.Set("content", contentType)
	}

	var contents []StorageContent
	path := fmt.Sprintf("/nodes/%s/storage/%s/content", node, storage)
	if err := c.get(ctx, path, form, &contents); err != nil {
		return nil, err
	}
	return contents, nil
}

// TaskStatus reports the state of a background task (clone, backup, ...).
func (c *Client) TaskStatus(ctx context.Context, node, upid string) (*TaskStatus, error) {
	var status TaskStatus
	path := fmt.Sprintf("/nodes/%s/tasks/%s/status", node, url.PathEscape(upid))
	if err := c.get(ctx, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TaskLog returns the log lines of a background task.
func (c *Client) TaskLog(ctx context.Context, node, upid string) ([]TaskLogLine, error) {
	var lines []TaskLogLine
	path := fmt.Sprintf("/nodes/%s/tasks/%s/log", node, url.PathEscape(upid))
	if err := c.get(ctx, path, nil, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}
