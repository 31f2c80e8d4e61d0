package guest

import (
	"context"
	"errors"
	"testing"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
)

type fakeProber struct {
	err   error
	calls int
}

func (f *fakeProber) AgentPing(ctx context.Context, node string, vmid int) error {
	f.calls++
	return f.err
}

func qemuTarget() Target {
	return Target{Node: "pve1", VMID: 101, Type: proxmox.GuestQemu}
}

func sshCreds() Credentials {
	return Credentials{Host: "10.0.0.5", User: "root", Password: "x"}
}

func TestResolveAgentFirst(t *testing.T) {
	r := NewResolver(&fakeProber{}, log.NewNop())

	got := r.Resolve(context.Background(), qemuTarget(), sshCreds())
	want := []Channel{ChannelAgent, ChannelSSH}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveAgentOmittedWhenNotRunning(t *testing.T) {
	r := NewResolver(&fakeProber{err: proxmox.ErrAgentNotRunning}, log.NewNop())

	got := r.Resolve(context.Background(), qemuTarget(), sshCreds())
	if len(got) != 1 || got[0] != ChannelSSH {
		t.Errorf("Resolve() = %v, want [ssh]", got)
	}
}

func TestResolveEmptyWithoutAgentOrCreds(t *testing.T) {
	r := NewResolver(&fakeProber{err: proxmox.ErrAgentNotRunning}, log.NewNop())

	if got := r.Resolve(context.Background(), qemuTarget(), Credentials{}); len(got) != 0 {
		t.Errorf("Resolve() = %v, want empty", got)
	}
}

func TestResolveSSHRequiresAuthMethod(t *testing.T) {
	r := NewResolver(&fakeProber{}, log.NewNop())

	// Address without password or key: SSH must be omitted.
	creds := Credentials{Host: "10.0.0.5", User: "root"}
	got := r.Resolve(context.Background(), qemuTarget(), creds)
	if len(got) != 1 || got[0] != ChannelAgent {
		t.Errorf("Resolve() = %v, want [agent]", got)
	}
}

func TestResolveSkipsAgentProbeForLXC(t *testing.T) {
	prober := &fakeProber{}
	r := NewResolver(prober, log.NewNop())

	target := Target{Node: "pve1", VMID: 200, Type: proxmox.GuestLXC}
	got := r.Resolve(context.Background(), target, sshCreds())
	if len(got) != 1 || got[0] != ChannelSSH {
		t.Errorf("Resolve() = %v, want [ssh]", got)
	}
	if prober.calls != 0 {
		t.Errorf("agent probed %d times for a container", prober.calls)
	}
}

func TestResolveProbeTransportFailureOmitsAgent(t *testing.T) {
	r := NewResolver(&fakeProber{err: errors.New("connection refused")}, log.NewNop())

	got := r.Resolve(context.Background(), qemuTarget(), sshCreds())
	if len(got) != 1 || got[0] != ChannelSSH {
		t.Errorf("Resolve() = %v, want [ssh]", got)
	}
}
