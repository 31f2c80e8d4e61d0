package guest

import "time"

// Channel names the transport that produced a result.
type Channel string

const (
	ChannelAgent Channel = "agent"
	ChannelSSH   Channel = "ssh"
)

// MaxCaptureBytes bounds stdout/stderr capture per stream so runaway guest
// output cannot grow memory without limit.
const MaxCaptureBytes = 64 * 1024

// Result is the normalized outcome of a guest operation. Exactly one
// channel is recorded even when both were attempted. A non-zero ExitCode is
// a successful Result: the operation ran, the in-guest command failed.
type Result struct {
	Channel  Channel
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// truncate caps a captured stream at MaxCaptureBytes, marking the cut.
func truncate(s string) string {
	if len(s) <= MaxCaptureBytes {
		return s
	}
	return s[:MaxCaptureBytes] + "\n...[output truncated]"
}
