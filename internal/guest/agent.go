package guest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vmforge/proxmox-mcp/internal/log"
	"github.com/vmforge/proxmox-mcp/internal/proxmox"
)

// AgentAPI is the slice of the hypervisor API the agent channel consumes.
// *proxmox.Client satisfies it.
type AgentAPI interface {
	AgentExec(ctx context.Context, node string, vmid int, command []string) (int, error)
	AgentExecStatus(ctx context.Context, node string, vmid, pid int) (*proxmox.AgentExecStatus, error)
	AgentFileRead(ctx context.Context, node string, vmid int, path string) ([]byte, bool, error)
	AgentFileWrite(ctx context.Context, node string, vmid int, path string, content []byte, appendTo bool) error
}

// writeChunkSize is the per-call payload for chunked file writes, kept
// under the API's form-encoding overhead for the base64 payload.
const writeChunkSize = 44 * 1024

// AgentChannel executes guest operations through the hypervisor's guest
// agent endpoints with bounded polling.
type AgentChannel struct {
	api          AgentAPI
	pollInterval time.Duration
	logger       log.Logger
}

// NewAgentChannel creates an AgentChannel polling at the given interval.
func NewAgentChannel(api AgentAPI, pollInterval time.Duration, logger log.Logger) *AgentChannel {
	if pollInterval <= 0 {
		pollInterval = DefaultTimeouts.PollInterval
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &AgentChannel{api: api, pollInterval: pollInterval, logger: logger}
}

// Execute performs op against the target within timeout.
func (a *AgentChannel) Execute(ctx context.Context, target Target, op Operation, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var (
		res *Result
		err error
	)
	switch op.Kind {
	case OpReadFile:
		res, err = a.readFile(ctx, target, op)
	case OpWriteFile:
		res, err = a.writeFile(ctx, target, op)
	default:
		res, err = a.exec(ctx, target, op)
	}
	if err != nil {
		return nil, err
	}

	res.Channel = ChannelAgent
	res.Duration = time.Since(start)
	return res, nil
}

// exec submits the command and polls exec-status until the process exits or
// the deadline fires. A non-zero in-guest exit code is a success result.
func (a *AgentChannel) exec(ctx context.Context, target Target, op Operation) (*Result, error) {
	pid, err := a.api.AgentExec(ctx, target.Node, target.VMID, op.commandVector())
	if err != nil {
		return nil, classifySubmit(err, target)
	}

	a.logger.Debug("agent command submitted", "target", target.String(), "pid", pid)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The in-guest process keeps running untracked; accepted leak.
			return nil, fmt.Errorf("%w: pid %d on %s", ErrAgentTimeout, pid, target.String())
		case <-ticker.C:
		}

		status, err := a.api.AgentExecStatus(ctx, target.Node, target.VMID, pid)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: pid %d on %s", ErrAgentTimeout, pid, target.String())
			}
			// The command was already submitted; failing over now could run
			// it twice. Terminal.
			return nil, fmt.Errorf("%w: polling pid %d: %v", ErrAgentError, pid, err)
		}
		if status.Exited == 0 {
			continue
		}

		return &Result{
			ExitCode: status.ExitCode,
			Stdout:   truncate(status.OutData),
			Stderr:   truncate(status.ErrData),
		}, nil
	}
}

func (a *AgentChannel) readFile(ctx context.Context, target Target, op Operation) (*Result, error) {
	content, truncated, err := a.api.AgentFileRead(ctx, target.Node, target.VMID, op.Path)
	if err != nil {
		return nil, classifySubmit(err, target)
	}
	if truncated {
		return nil, fmt.Errorf("%w: %s", ErrTransferTruncated, op.Path)
	}
	return &Result{Stdout: string(content)}, nil
}

// writeFile splits the content at the API payload cap and issues sequential
// append writes. Any chunk failure truncates the partial target file
// (best-effort) and fails the whole operation; no partial write survives.
func (a *AgentChannel) writeFile(ctx context.Context, target Target, op Operation) (*Result, error) {
	content := op.Content
	for i := 0; len(content) > 0 || i == 0; i++ {
		chunk := content
		if len(chunk) > writeChunkSize {
			chunk = chunk[:writeChunkSize]
		}
		content = content[len(chunk):]

		if err := a.api.AgentFileWrite(ctx, target.Node, target.VMID, op.Path, chunk, i > 0); err != nil {
			if i == 0 {
				// Nothing written yet; submission failure may fall back.
				return nil, classifySubmit(err, target)
			}
			a.cleanup(target, op.Path)
			return nil, fmt.Errorf("%w: chunk %d of %s: %v", ErrTransfer, i, op.Path, err)
		}
	}
	return &Result{}, nil
}

// cleanup truncates a partially written file after a failed chunk.
// Best-effort: a short fresh deadline, failure only logged.
func (a *AgentChannel) cleanup(target Target, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.api.AgentFileWrite(ctx, target.Node, target.VMID, path, nil, false); err != nil {
		a.logger.Warn("could not truncate partial file after failed write",
			"target", target.String(), "path", path, "error", err)
	}
}

// classifySubmit maps a submission failure to the error taxonomy: agent-gone
// and transport failures are availability class (nothing ran in the guest
// yet, falling back is safe), everything else is an agent error.
func classifySubmit(err error, target Target) error {
	if errors.Is(err, proxmox.ErrAgentNotRunning) {
		return fmt.Errorf("%w: %s", ErrAgentUnavailable, target.String())
	}
	var apiErr *proxmox.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status >= http.StatusInternalServerError {
			// PVE reports a dead or missing agent as a 500.
			return fmt.Errorf("%w: %s: %s", ErrAgentUnavailable, target.String(), apiErr.Message)
		}
		return fmt.Errorf("%w: %v", ErrAgentError, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s", ErrAgentTimeout, target.String())
	}
	// Transport-level failure talking to the hypervisor.
	return fmt.Errorf("%w: %s: %v", ErrAgentUnavailable, target.String(), err)
}
