package guest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

// fakeRunner scripts one channel's outcome for executor tests.
type fakeRunner struct {
	result *Result
	err    error
	calls  int
}

func (f *fakeRunner) run(ctx context.Context, target Target, creds Credentials, op Operation, timeout time.Duration) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	return &res, nil
}

func newTestExecutor(prober AgentProber, agent, sshR *fakeRunner) *Executor {
	return &Executor{
		resolver: NewResolver(prober, log.NewNop()),
		timeouts: DefaultTimeouts,
		runners: map[Channel]channelRunner{
			ChannelAgent: agent,
			ChannelSSH:   sshR,
		},
		logger: log.NewNop(),
	}
}

func TestRunAgentOnlyUnavailableIsNoChannel(t *testing.T) {
	agent := &fakeRunner{err: ErrAgentUnavailable}
	sshR := &fakeRunner{result: &Result{Channel: ChannelSSH}}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	// No SSH credentials supplied: the agent is the only channel.
	_, err := exec.Run(context.Background(), qemuTarget(), Exec("echo hi", ""), Credentials{})
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if sshR.calls != 0 {
		t.Errorf("SSH attempted %d times without credentials", sshR.calls)
	}
}

func TestRunNonZeroExitDoesNotFallBack(t *testing.T) {
	agent := &fakeRunner{result: &Result{Channel: ChannelAgent, ExitCode: 2, Stderr: "no such file\n"}}
	sshR := &fakeRunner{result: &Result{Channel: ChannelSSH, ExitCode: 0}}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	res, err := exec.Run(context.Background(), qemuTarget(), Exec("ls /nope", ""), sshCreds())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Channel != ChannelAgent || res.ExitCode != 2 {
		t.Errorf("result = %+v, want agent channel with exit 2", res)
	}
	if sshR.calls != 0 {
		t.Errorf("SSH attempted %d times after an authoritative agent result", sshR.calls)
	}
}

func TestRunFallsBackToSSHOnce(t *testing.T) {
	agent := &fakeRunner{err: ErrAgentUnavailable}
	sshR := &fakeRunner{result: &Result{Channel: ChannelSSH, ExitCode: 0, Stdout: "hi\n"}}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	res, err := exec.Run(context.Background(), qemuTarget(), Exec("echo hi", ""), sshCreds())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Channel != ChannelSSH || res.Stdout != "hi\n" || res.ExitCode != 0 {
		t.Errorf("result = %+v", res)
	}
	if agent.calls != 1 || sshR.calls != 1 {
		t.Errorf("calls agent=%d ssh=%d, want 1 and 1", agent.calls, sshR.calls)
	}
}

func TestRunSSHDirectWhenAgentNotReported(t *testing.T) {
	// Hypervisor reports no agent: SSH is attempted first and exactly once.
	agent := &fakeRunner{result: &Result{Channel: ChannelAgent}}
	sshR := &fakeRunner{result: &Result{Channel: ChannelSSH, ExitCode: 0, Stdout: "hi\n"}}
	exec := newTestExecutor(&fakeProber{err: errors.New("agent not running")}, agent, sshR)

	creds := Credentials{Host: "10.0.0.5", User: "root", Password: "x"}
	res, err := exec.Run(context.Background(), qemuTarget(), Exec("echo hi", ""), creds)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Channel != ChannelSSH || res.ExitCode != 0 || res.Stdout != "hi\n" {
		t.Errorf("result = %+v", res)
	}
	if agent.calls != 0 || sshR.calls != 1 {
		t.Errorf("calls agent=%d ssh=%d, want 0 and 1", agent.calls, sshR.calls)
	}
}

func TestRunAgentTimeoutIsTerminal(t *testing.T) {
	agent := &fakeRunner{err: ErrAgentTimeout}
	sshR := &fakeRunner{result: &Result{Channel: ChannelSSH}}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	_, err := exec.Run(context.Background(), qemuTarget(), Exec("sleep 600", ""), sshCreds())
	if !errors.Is(err, ErrAgentTimeout) {
		t.Fatalf("expected ErrAgentTimeout, got %v", err)
	}
	if sshR.calls != 0 {
		t.Errorf("timeout must not trigger fallback, SSH called %d times", sshR.calls)
	}
}

func TestRunBothChannelsUnavailable(t *testing.T) {
	agent := &fakeRunner{err: ErrAgentUnavailable}
	sshR := &fakeRunner{err: ErrConnectTimeout}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	_, err := exec.Run(context.Background(), qemuTarget(), Exec("echo hi", ""), sshCreds())
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if agent.calls != 1 || sshR.calls != 1 {
		t.Errorf("calls agent=%d ssh=%d, want 1 and 1", agent.calls, sshR.calls)
	}
}

func TestRunAuthFailureTriggersNoSecondSSHAttempt(t *testing.T) {
	agent := &fakeRunner{err: ErrAgentUnavailable}
	sshR := &fakeRunner{err: ErrAuthFailure}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	_, err := exec.Run(context.Background(), qemuTarget(), Exec("echo hi", ""), sshCreds())
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if sshR.calls != 1 {
		t.Errorf("SSH attempted %d times, want exactly 1", sshR.calls)
	}
}

func TestRunSanitizerRejectionAttemptsNoChannel(t *testing.T) {
	agent := &fakeRunner{result: &Result{Channel: ChannelAgent}}
	sshR := &fakeRunner{result: &Result{Channel: ChannelSSH}}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	tests := []struct {
		name string
		op   Operation
	}{
		{"traversal path", ReadFile("/var/../../etc/shadow")},
		{"relative path", WriteFile("tmp/a.txt", []byte("x"))},
		{"package with pipe", Install("nginx|nc")},
		{"empty command", Exec("", "")},
		{"workdir with metachar", Exec("ls", "/tmp;id")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exec.Run(context.Background(), qemuTarget(), tt.op, sshCreds())
			if !errors.Is(err, security.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	if agent.calls != 0 || sshR.calls != 0 {
		t.Errorf("channels attempted after sanitizer rejection: agent=%d ssh=%d", agent.calls, sshR.calls)
	}
}

func TestRunInvalidTarget(t *testing.T) {
	exec := newTestExecutor(&fakeProber{}, &fakeRunner{}, &fakeRunner{})

	bad := Target{Node: "pve1;reboot", VMID: 101, Type: "qemu"}
	_, err := exec.Run(context.Background(), bad, Exec("echo hi", ""), Credentials{})
	if !errors.Is(err, security.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRunInvalidSSHHost(t *testing.T) {
	agent := &fakeRunner{err: ErrAgentUnavailable}
	sshR := &fakeRunner{result: &Result{Channel: ChannelSSH}}
	exec := newTestExecutor(&fakeProber{}, agent, sshR)

	creds := Credentials{Host: "10.0.0.5;reboot", User: "root", Password: "x"}
	_, err := exec.Run(context.Background(), qemuTarget(), Exec("echo hi", ""), creds)
	if !errors.Is(err, security.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if sshR.calls != 0 {
		t.Errorf("SSH attempted with malformed host")
	}
}
