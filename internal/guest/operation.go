package guest

import (
	"fmt"
	"time"

	"github.com/vmforge/proxmox-mcp/internal/security"
)

// OpKind tags the Operation variant.
type OpKind string

const (
	OpExec      OpKind = "exec"
	OpInstall   OpKind = "install"
	OpReadFile  OpKind = "read-file"
	OpWriteFile OpKind = "write-file"
)

// Operation is one privileged action to perform inside a guest. Use the
// constructors; only the fields of the tagged variant are meaningful.
type Operation struct {
	Kind OpKind

	// OpExec
	Command string
	WorkDir string

	// OpInstall
	Package string

	// OpReadFile / OpWriteFile
	Path    string
	Content []byte
}

// Exec runs a free-form command line in the guest, optionally from a
// working directory.
func Exec(command, workDir string) Operation {
	return Operation{Kind: OpExec, Command: command, WorkDir: workDir}
}

// Install installs a package via the guest's package manager.
func Install(pkg string) Operation {
	return Operation{Kind: OpInstall, Package: pkg}
}

// ReadFile reads a file from the guest.
func ReadFile(path string) Operation {
	return Operation{Kind: OpReadFile, Path: path}
}

// WriteFile writes content to a path in the guest.
func WriteFile(path string, content []byte) Operation {
	return Operation{Kind: OpWriteFile, Path: path, Content: content}
}

// sanitized validates every string field of the variant and returns a clean
// copy. Rejection is all-or-nothing: on error no channel may be attempted.
func (op Operation) sanitized() (Operation, error) {
	out := op
	var err error

	switch op.Kind {
	case OpExec:
		if out.Command, err = security.CommandLine(op.Command); err != nil {
			return Operation{}, err
		}
		if op.WorkDir != "" {
			if out.WorkDir, err = security.GuestPath(op.WorkDir); err != nil {
				return Operation{}, err
			}
		}
	case OpInstall:
		if out.Package, err = security.PackageName(op.Package); err != nil {
			return Operation{}, err
		}
	case OpReadFile:
		if out.Path, err = security.GuestPath(op.Path); err != nil {
			return Operation{}, err
		}
	case OpWriteFile:
		if out.Path, err = security.GuestPath(op.Path); err != nil {
			return Operation{}, err
		}
	default:
		return Operation{}, fmt.Errorf("%w: unknown operation %q", security.ErrInvalidInput, op.Kind)
	}

	return out, nil
}

// shellLine renders the command the guest shell should run. The line is
// passed as a single argv element of `sh -c`, so caller-supplied command
// text is never re-parsed by an extra shell layer; WorkDir and Package have
// already passed their restrictive grammars.
func (op Operation) shellLine() string {
	switch op.Kind {
	case OpInstall:
		return fmt.Sprintf("export DEBIAN_FRONTEND=noninteractive; apt-get -q update && apt-get -qy install %s", op.Package)
	case OpExec:
		if op.WorkDir != "" {
			return fmt.Sprintf("cd %s && %s", op.WorkDir, op.Command)
		}
		return op.Command
	default:
		return ""
	}
}

// commandVector is the argv submitted to the agent exec endpoint.
func (op Operation) commandVector() []string {
	return []string{"/bin/sh", "-c", op.shellLine()}
}

// TimeoutTable is the per-operation-class timeout policy. Installs get a
// longer deadline than ad-hoc commands because they run package manager
// operations; file operations use a transfer-class deadline sized to
// expected file sizes.
type TimeoutTable struct {
	Command  time.Duration
	Install  time.Duration
	Transfer time.Duration

	// Connect bounds the SSH connection phase.
	Connect time.Duration

	// PollInterval is the agent exec-status polling cadence.
	PollInterval time.Duration
}

// DefaultTimeouts is the production policy.
var DefaultTimeouts = TimeoutTable{
	Command:      2 * time.Minute,
	Install:      10 * time.Minute,
	Transfer:     5 * time.Minute,
	Connect:      15 * time.Second,
	PollInterval: 2 * time.Second,
}

// For returns the deadline class for an operation.
func (t TimeoutTable) For(op Operation) time.Duration {
	switch op.Kind {
	case OpInstall:
		return t.Install
	case OpReadFile, OpWriteFile:
		return t.Transfer
	default:
		return t.Command
	}
}
