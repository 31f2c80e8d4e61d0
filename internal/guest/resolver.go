package guest

import (
	"context"
	"errors"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
)

// AgentProber answers whether the guest agent is reachable for a VM.
// *proxmox.Client satisfies it.
type AgentProber interface {
	AgentPing(ctx context.Context, node string, vmid int) error
}

// Resolver decides which channels are available for a request. It is a pure
// decision function over the request plus a single agent-status query; it
// holds no per-call state.
type Resolver struct {
	prober AgentProber
	logger log.Logger
}

// NewResolver creates a Resolver.
func NewResolver(prober AgentProber, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver{prober: prober, logger: logger}
}

// Resolve returns the ordered channel list for the target. The agent comes
// first whenever the hypervisor reports it as running; SSH is appended only
// when the request carried an address and at least one authentication
// method. An empty list means the caller must fail with ErrNoChannel.
//
// Containers have no QEMU guest agent, so for LXC targets only the SSH
// entry can appear.
func (r *Resolver) Resolve(ctx context.Context, target Target, creds Credentials) []Channel {
	var channels []Channel

	if target.Type == proxmox.GuestQemu {
		switch err := r.prober.AgentPing(ctx, target.Node, target.VMID); {
		case err == nil:
			channels = append(channels, ChannelAgent)
		case errors.Is(err, proxmox.ErrAgentNotRunning):
			r.logger.Debug("agent not running, channel omitted", "target", target.String())
		default:
			// Transport-level probe failure: the agent may be fine, but we
			// cannot confirm it, so treat it as absent rather than hang the
			// operation on an unreachable endpoint.
			r.logger.Warn("agent probe failed, channel omitted",
				"target", target.String(), "error", err)
		}
	}

	if creds.usable() {
		channels = append(channels, ChannelSSH)
	}

	return channels
}
