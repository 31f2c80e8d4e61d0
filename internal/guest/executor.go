package guest

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/vmforge/proxmox-mcp/internal/log"
)

// channelRunner is the operation-shaped face both channel clients present
// to the executor.
type channelRunner interface {
	run(ctx context.Context, target Target, creds Credentials, op Operation, timeout time.Duration) (*Result, error)
}

type agentRunner struct{ ch *AgentChannel }

func (r agentRunner) run(ctx context.Context, target Target, _ Credentials, op Operation, timeout time.Duration) (*Result, error) {
	return r.ch.Execute(ctx, target, op, timeout)
}

type sshRunner struct{ ch *SSHChannel }

func (r sshRunner) run(ctx context.Context, _ Target, creds Credentials, op Operation, timeout time.Duration) (*Result, error) {
	return r.ch.Execute(ctx, creds, op, timeout)
}

// Executor orchestrates the agent and SSH channels behind one
// operation-shaped interface.
//
// Fallback policy: the first channel is attempted with its class timeout;
// only an availability-class failure (agent unreachable, SSH connect or
// auth failure) moves the operation to the next channel, and that happens
// at most once. Any other failure is authoritative: a command that
// legitimately failed must not be re-run on a second channel where it
// could duplicate side effects, and a flaky agent must never mask a real
// result obtained over SSH.
type Executor struct {
	resolver *Resolver
	timeouts TimeoutTable
	runners  map[Channel]channelRunner
	logger   log.Logger
}

// NewExecutor wires the resolver and both channel clients.
func NewExecutor(resolver *Resolver, agent *AgentChannel, sshCh *SSHChannel, timeouts TimeoutTable, logger log.Logger) *Executor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Executor{
		resolver: resolver,
		timeouts: timeouts,
		runners: map[Channel]channelRunner{
			ChannelAgent: agentRunner{ch: agent},
			ChannelSSH:   sshRunner{ch: sshCh},
		},
		logger: logger,
	}
}

// Run performs one guest operation. Credentials, if supplied, are scoped to
// this call and discarded when it returns.
func (e *Executor) Run(ctx context.Context, target Target, op Operation, creds Credentials) (*Result, error) {
	opID := uuid.NewString()
	logger := e.logger.With("op_id", opID, "target", target.String(), "kind", op.Kind)

	if err := target.validate(); err != nil {
		return nil, err
	}

	channels := e.resolver.Resolve(ctx, target, creds)
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: agent not running and no ssh credentials supplied", ErrNoChannel)
	}

	// Sanitize before any channel is attempted; rejection here is final.
	op, err := op.sanitized()
	if err != nil {
		return nil, err
	}
	if slices.Contains(channels, ChannelSSH) {
		if err := creds.validate(); err != nil {
			return nil, err
		}
	}

	timeout := e.timeouts.For(op)

	for i, ch := range channels {
		logger.Debug("attempting channel", "channel", ch, "timeout", timeout)

		res, err := e.runners[ch].run(ctx, target, creds, op, timeout)
		if err == nil {
			logger.Info("guest operation completed",
				"channel", ch, "exit_code", res.ExitCode, "duration", res.Duration)
			return res, nil
		}

		if isAvailabilityError(err) && i+1 < len(channels) {
			// Exactly one fallback; the loop carries at most two entries.
			logger.Warn("channel unavailable, falling back",
				"channel", ch, "next", channels[i+1], "error", err)
			continue
		}

		if isAvailabilityError(err) {
			return nil, fmt.Errorf("%w: %v", ErrNoChannel, err)
		}
		return nil, fmt.Errorf("channel %s: %w", ch, err)
	}

	return nil, ErrNoChannel
}
