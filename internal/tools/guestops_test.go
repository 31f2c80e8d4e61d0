package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vmforge/proxmox-mcp/internal/guest"
	"github.com/vmforge/proxmox-mcp/internal/log"
)

type fakeGuestRunner struct {
	result *guest.Result
	err    error

	target guest.Target
	op     guest.Operation
	creds  guest.Credentials
}

func (f *fakeGuestRunner) Run(_ context.Context, target guest.Target, op guest.Operation, creds guest.Credentials) (*guest.Result, error) {
	f.target, f.op, f.creds = target, op, creds
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &guest.Result{Channel: guest.ChannelAgent}, nil
}

func newGuestOps(t *testing.T, runner Runner) *GuestOps {
	t.Helper()
	g, err := NewGuestOps(runner, log.NewNop())
	if err != nil {
		t.Fatalf("NewGuestOps() error = %v", err)
	}
	return g
}

func TestGuestOpsExecute(t *testing.T) {
	runner := &fakeGuestRunner{result: &guest.Result{
		Channel:  guest.ChannelAgent,
		ExitCode: 0,
		Stdout:   "hi\n",
		Duration: 30 * time.Millisecond,
	}}
	g := newGuestOps(t, runner)

	result, err := g.Execute(context.Background(), ExecuteInput{
		Node: "pve1", VMID: 101, Command: "echo hi", WorkDir: "/opt",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("Status = %q: %+v", result.Status, result.Error)
	}

	if runner.op.Kind != guest.OpExec || runner.op.Command != "echo hi" || runner.op.WorkDir != "/opt" {
		t.Errorf("op = %+v", runner.op)
	}
	data := result.Data.(map[string]any)
	if data["stdout"] != "hi\n" || data["success"] != true {
		t.Errorf("data = %v", data)
	}
}

func TestGuestOpsExecuteNonZeroExitIsSuccess(t *testing.T) {
	runner := &fakeGuestRunner{result: &guest.Result{
		Channel:  guest.ChannelSSH,
		ExitCode: 127,
		Stderr:   "not found",
	}}
	g := newGuestOps(t, runner)

	result, err := g.Execute(context.Background(), ExecuteInput{Node: "pve1", VMID: 101, Command: "nope"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success for non-zero exit", result.Status)
	}
	data := result.Data.(map[string]any)
	if data["exit_code"] != 127 || data["success"] != false {
		t.Errorf("data = %v", data)
	}
}

func TestGuestOpsExecuteNoChannel(t *testing.T) {
	runner := &fakeGuestRunner{err: guest.ErrNoChannel}
	g := newGuestOps(t, runner)

	result, err := g.Execute(context.Background(), ExecuteInput{Node: "pve1", VMID: 101, Command: "echo hi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Error == nil || result.Error.Code != ErrCodeUnavailable {
		t.Errorf("result = %+v, want unavailable error", result)
	}
}

func TestGuestOpsInstallKnownSoftware(t *testing.T) {
	tests := []struct {
		software string
		wantCmd  string
	}{
		{"docker", "get.docker.com"},
		{"nginx", "apt-get install -y nginx"},
		{"update", "apt-get upgrade -y"},
		{"wordpress_docker", "docker run -d --name wordpress"},
		{"Docker", "get.docker.com"}, // case-insensitive lookup
	}

	for _, tt := range tests {
		t.Run(tt.software, func(t *testing.T) {
			runner := &fakeGuestRunner{}
			g := newGuestOps(t, runner)

			_, err := g.Install(context.Background(), InstallInput{Node: "pve1", VMID: 101, Software: tt.software})
			if err != nil {
				t.Fatalf("Install() error = %v", err)
			}
			if runner.op.Kind != guest.OpExec {
				t.Fatalf("op kind = %s, want exec for known software", runner.op.Kind)
			}
			if !strings.Contains(runner.op.Command, tt.wantCmd) {
				t.Errorf("command = %q, want it to contain %q", runner.op.Command, tt.wantCmd)
			}
		})
	}
}

func TestGuestOpsInstallBarePackage(t *testing.T) {
	runner := &fakeGuestRunner{}
	g := newGuestOps(t, runner)

	_, err := g.Install(context.Background(), InstallInput{Node: "pve1", VMID: 101, Software: "htop"})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if runner.op.Kind != guest.OpInstall || runner.op.Package != "htop" {
		t.Errorf("op = %+v, want install of htop", runner.op)
	}
}

func TestGuestOpsReadFile(t *testing.T) {
	runner := &fakeGuestRunner{result: &guest.Result{
		Channel: guest.ChannelAgent,
		Stdout:  "contents",
	}}
	g := newGuestOps(t, runner)

	result, err := g.ReadFile(context.Background(), ReadFileInput{Node: "pve1", VMID: 101, Path: "/etc/hostname"})
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	data := result.Data.(map[string]any)
	if data["content"] != "contents" {
		t.Errorf("content = %v", data["content"])
	}
	if runner.op.Kind != guest.OpReadFile || runner.op.Path != "/etc/hostname" {
		t.Errorf("op = %+v", runner.op)
	}
}

func TestGuestOpsWriteFilePassesCredentials(t *testing.T) {
	runner := &fakeGuestRunner{result: &guest.Result{Channel: guest.ChannelSSH}}
	g := newGuestOps(t, runner)

	result, err := g.WriteFile(context.Background(), WriteFileInput{
		Node: "pve1", VMID: 101, Path: "/etc/motd", Content: "hello",
		SSHInput: SSHInput{Host: "10.0.0.5", User: "root", Password: "pw"},
	})
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("Status = %q", result.Status)
	}

	if string(runner.op.Content) != "hello" {
		t.Errorf("content = %q", runner.op.Content)
	}
	if runner.creds.Host != "10.0.0.5" || runner.creds.Password != "pw" {
		t.Errorf("creds = %+v", runner.creds)
	}
}
