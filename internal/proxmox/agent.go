package proxmox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// AgentFileWriteLimit is the maximum payload per file-write call. The PVE
// endpoint rejects larger bodies; callers split bigger files into
// sequential chunks.
const AgentFileWriteLimit = 60 * 1024

// AgentPing checks whether the QEMU guest agent answers for the VM.
// A 500-class response here means the agent is not installed or not
// running, reported as ErrAgentNotRunning so callers can distinguish it
// from transport failures.
func (c *Client) AgentPing(ctx context.Context, node string, vmid int) error {
	err := c.post(ctx, guestPath(node, GuestQemu, vmid, "/agent/ping"), nil, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: vm %d on %s", ErrAgentNotRunning, vmid, node)
	}
	return err
}

// AgentExec submits a command vector to the guest agent. Returns the
// in-guest PID to poll with AgentExecStatus.
func (c *Client) AgentExec(ctx context.Context, node string, vmid int, command []string) (int, error) {
	form := url.Values{}
	for _, arg := range command {
		form.Add("command", arg)
	}

	var out struct {
		PID int `json:"pid"`
	}
	if err := c.post(ctx, guestPath(node, GuestQemu, vmid, "/agent/exec"), form, &out); err != nil {
		return 0, err
	}
	if out.PID == 0 {
		return 0, fmt.Errorf("agent exec on vm %d returned no pid", vmid)
	}
	return out.PID, nil
}

// AgentExecStatus polls a previously submitted agent command.
func (c *Client) AgentExecStatus(ctx context.Context, node string, vmid, pid int) (*AgentExecStatus, error) {
	form := url.Values{}
	form.Set("pid", strconv.Itoa(pid))

	var status AgentExecStatus
	if err := c.get(ctx, guestPath(node, GuestQemu, vmid, "/agent/exec-status"), form, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AgentFileRead reads a file from the guest. The second return value is
// true when the API truncated the content (the endpoint caps reads at
// 16 MiB).
func (c *Client) AgentFileRead(ctx context.Context, node string, vmid int, path string) ([]byte, bool, error) {
	form := url.Values{}
	form.Set("file", path)

	var out AgentFileRead
	if err := c.get(ctx, guestPath(node, GuestQemu, vmid, "/agent/file-read"), form, &out); err != nil {
		return nil, false, err
	}

	// The agent may deliver raw text or base64 depending on content;
	// PVE base64-encodes binary content and marks it. Try base64 first
	// and fall back to the literal bytes.
	if decoded, err := base64.StdEncoding.DecodeString(out.Content); err == nil && out.Content != "" {
		return decoded, out.Truncated != 0, nil
	}
	return []byte(out.Content), out.Truncated != 0, nil
}

// AgentFileWrite writes one chunk of content to a file in the guest, either
// truncating the target or appending to it. Content is base64-encoded on
// the wire. len(content) must not exceed AgentFileWriteLimit.
func (c *Client) AgentFileWrite(ctx context.Context, node string, vmid int, path string, content []byte, appendTo bool) error {
	if len(content) > AgentFileWriteLimit {
		return fmt.Errorf("file-write chunk of %d bytes exceeds limit %d", len(content), AgentFileWriteLimit)
	}

	form := url.Values{}
	form.Set("file", path)
	form.Set("content", base64.StdEncoding.EncodeToString(content))
	form.Set("encode", "0") // already encoded client-side
	if appendTo {
		form.Set("append", "1")
	}

	return c.post(ctx, guestPath(node, GuestQemu, vmid, "/agent/file-write"), form, nil)
}
