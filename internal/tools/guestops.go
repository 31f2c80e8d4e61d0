package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/vmforge/proxmox-mcp/internal/guest"
	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
)

// Runner executes operations inside guests.
type Runner interface {
	Run(ctx context.Context, target guest.Target, op guest.Operation, creds guest.Credentials) (*guest.Result, error)
}

// GuestOps runs commands and transfers files inside guests.
type GuestOps struct {
	runner Runner
	logger log.Logger
}

// NewGuestOps creates the guest operations toolset.
func NewGuestOps(runner Runner, logger log.Logger) (*GuestOps, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &GuestOps{runner: runner, logger: logger.With("toolset", "guest")}, nil
}

// SSHInput carries optional SSH credentials for the fallback channel. The
// values live for a single call.
type SSHInput struct {
	Host       string `json:"ssh_host,omitempty" jsonschema:"guest address for SSH fallback"`
	User       string `json:"ssh_user,omitempty" jsonschema:"SSH user"`
	Password   string `json:"ssh_password,omitempty" jsonschema:"SSH password"`
	PrivateKey string `json:"ssh_private_key,omitempty" jsonschema:"PEM-encoded SSH private key"`
	Port       int    `json:"ssh_port,omitempty" jsonschema:"SSH port, default 22"`
}

func (in SSHInput) credentials() guest.Credentials {
	return guest.Credentials{
		Host:       in.Host,
		User:       in.User,
		Password:   in.Password,
		PrivateKey: []byte(in.PrivateKey),
		Port:       in.Port,
	}
}

// ExecuteInput runs a shell command inside a guest.
type ExecuteInput struct {
	Node    string `json:"node" jsonschema:"the cluster node name"`
	VMID    int    `json:"vmid" jsonschema:"the guest VMID"`
	Command string `json:"command" jsonschema:"the shell command line to run"`
	WorkDir string `json:"workdir,omitempty" jsonschema:"working directory for the command"`
	SSHInput
}

// InstallInput installs software inside a guest.
type InstallInput struct {
	Node     string `json:"node" jsonschema:"the cluster node name"`
	VMID     int    `json:"vmid" jsonschema:"the guest VMID"`
	Software string `json:"software" jsonschema:"a known software name (docker, nginx, update, wordpress_docker) or a bare package name"`
	SSHInput
}

// ReadFileInput reads a file from a guest.
type ReadFileInput struct {
	Node string `json:"node" jsonschema:"the cluster node name"`
	VMID int    `json:"vmid" jsonschema:"the guest VMID"`
	Path string `json:"path" jsonschema:"absolute path of the file inside the guest"`
	SSHInput
}

// WriteFileInput writes a file into a guest.
type WriteFileInput struct {
	Node    string `json:"node" jsonschema:"the cluster node name"`
	VMID    int    `json:"vmid" jsonschema:"the guest VMID"`
	Path    string `json:"path" jsonschema:"absolute path of the file inside the guest"`
	Content string `json:"content" jsonschema:"the file content to write"`
	SSHInput
}

// knownSoftware maps curated names to their install command lines. Anything
// not listed is handled as a plain package install.
var knownSoftware = map[string]string{
	"docker":  "curl -fsSL https://get.docker.com | sh",
	"nginx":   "apt-get update && apt-get install -y nginx",
	"update":  "apt-get update && apt-get upgrade -y",
	"wordpress_docker": "docker run -d --name wordpress -p 80:80" +
		" -e WORDPRESS_DB_HOST=host.docker.internal" +
		" -e WORDPRESS_DB_USER=root -e WORDPRESS_DB_PASSWORD=root wordpress",
}

func guestTarget(node string, vmid int) guest.Target {
	return guest.Target{Node: node, VMID: vmid, Type: proxmox.GuestQemu}
}

func resultData(res *guest.Result) map[string]any {
	return map[string]any{
		"channel":     res.Channel,
		"exit_code":   res.ExitCode,
		"stdout":      res.Stdout,
		"stderr":      res.Stderr,
		"duration_ms": res.Duration.Milliseconds(),
		"success":     res.ExitCode == 0,
	}
}

// Execute runs a command inside a guest.
func (g *GuestOps) Execute(ctx context.Context, in ExecuteInput) (Result, error) {
	res, err := g.runner.Run(ctx, guestTarget(in.Node, in.VMID),
		guest.Exec(in.Command, in.WorkDir), in.credentials())
	if err != nil {
		return errorResult(err)
	}
	return success(resultData(res)), nil
}

// Install installs software inside a guest. Curated names expand to their
// full install commands; anything else goes through the package manager.
func (g *GuestOps) Install(ctx context.Context, in InstallInput) (Result, error) {
	software := strings.ToLower(strings.TrimSpace(in.Software))

	var op guest.Operation
	if cmd, ok := knownSoftware[software]; ok {
		op = guest.Exec(cmd, "")
	} else {
		op = guest.Install(software)
	}

	res, err := g.runner.Run(ctx, guestTarget(in.Node, in.VMID), op, in.credentials())
	if err != nil {
		return errorResult(err)
	}

	data := resultData(res)
	data["software"] = software
	return success(data), nil
}

// ReadFile reads a file from a guest.
func (g *GuestOps) ReadFile(ctx context.Context, in ReadFileInput) (Result, error) {
	res, err := g.runner.Run(ctx, guestTarget(in.Node, in.VMID),
		guest.ReadFile(in.Path), in.credentials())
	if err != nil {
		return errorResult(err)
	}
	return success(map[string]any{
		"path":    in.Path,
		"content": res.Stdout,
		"channel": res.Channel,
	}), nil
}

// WriteFile writes a file into a guest.
func (g *GuestOps) WriteFile(ctx context.Context, in WriteFileInput) (Result, error) {
	res, err := g.runner.Run(ctx, guestTarget(in.Node, in.VMID),
		guest.WriteFile(in.Path, []byte(in.Content)), in.credentials())
	if err != nil {
		return errorResult(err)
	}

	g.logger.Info("file written", "vmid", in.VMID, "path", in.Path, "bytes", len(in.Content))
	return success(map[string]any{
		"path":    in.Path,
		"bytes":   len(in.Content),
		"channel": res.Channel,
	}), nil
}
