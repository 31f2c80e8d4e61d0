package guest

import "errors"

// Error taxonomy for guest operations. Availability-class errors are the
// only fallback triggers; everything else is authoritative for the call.
var (
	// ErrNoChannel means neither the agent nor SSH could be used for the
	// target.
	ErrNoChannel = errors.New("no guest channel available")

	// ErrAgentUnavailable means the guest agent is not installed or not
	// responding. Availability class.
	ErrAgentUnavailable = errors.New("guest agent unavailable")

	// ErrAgentTimeout means a command was submitted to the agent but did
	// not finish before the operation deadline. The in-guest process may
	// still be running; the operation is terminal.
	ErrAgentTimeout = errors.New("guest agent command timed out")

	// ErrAgentError covers agent API failures after a command was
	// submitted. Terminal, because retrying on another channel could
	// duplicate in-guest side effects.
	ErrAgentError = errors.New("guest agent error")

	// ErrConnectTimeout means the SSH connection could not be established.
	// Availability class.
	ErrConnectTimeout = errors.New("ssh connect timeout")

	// ErrAuthFailure means the SSH server rejected the supplied
	// credentials. Availability class.
	ErrAuthFailure = errors.New("ssh authentication failed")

	// ErrTransfer covers file transfer failures on an established channel.
	ErrTransfer = errors.New("file transfer failed")

	// ErrTransferTruncated means the channel could only deliver a partial
	// file; the result is withheld rather than silently shortened.
	ErrTransferTruncated = errors.New("file content truncated by channel")
)

// isAvailabilityError reports whether err marks the attempted channel as
// unusable, which permits exactly one fallback to the next channel.
func isAvailabilityError(err error) bool {
	return errors.Is(err, ErrAgentUnavailable) ||
		errors.Is(err, ErrConnectTimeout) ||
		errors.Is(err, ErrAuthFailure)
}
