// Package security validates caller-supplied strings before they cross into
// a guest channel (CWE-78 command injection, CWE-22 path traversal).
//
// Each value class has its own allow-list grammar. Rejection is
// all-or-nothing per field: a value is either returned clean or the call
// fails with ErrInvalidInput. Free-form command lines are the one exception
// to pattern filtering: they are passed to the guest as an argument vector
// (sh -c <line>) so no additional shell layer re-interprets them, and are
// only checked for NUL bytes and length.
package security

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ErrInvalidInput is returned for every sanitizer rejection. Callers match
// it with errors.Is and must not attempt any channel after a rejection.
var ErrInvalidInput = errors.New("invalid input")

// MaxCommandLength bounds a free-form command line in bytes.
const MaxCommandLength = 10000

// shellMetachars are the characters used for command chaining and
// substitution. Values of pattern-filtered classes must not contain any of
// them.
const shellMetachars = ";|&`\n\r><$()"

var (
	hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,62}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,62}[a-zA-Z0-9])?)*$`)
	nodeRe     = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	packageRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]*$`)
	// Proxmox config IDs: snapshot names, backup storage names and the like.
	configIDRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
)

// Hostname validates an SSH target address: an IPv4/IPv6 literal or an
// RFC 1123 hostname.
func Hostname(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidInput)
	}
	if net.ParseIP(v) != nil {
		return v, nil
	}
	if len(v) > 253 || !hostnameRe.MatchString(v) {
		return "", fmt.Errorf("%w: malformed host %q", ErrInvalidInput, v)
	}
	return v, nil
}

// NodeName validates a Proxmox cluster node name.
func NodeName(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 63 || !nodeRe.MatchString(v) {
		return "", fmt.Errorf("%w: malformed node name %q", ErrInvalidInput, v)
	}
	return v, nil
}

// GuestPath validates an absolute POSIX path inside a guest. Relative
// paths, traversal segments, NUL bytes and shell metacharacters are all
// rejected; the path is forwarded verbatim to the agent or SFTP layer, so
// no normalization is applied.
func GuestPath(v string) (string, error) {
	if v == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidInput)
	}
	if !strings.HasPrefix(v, "/") {
		return "", fmt.Errorf("%w: path %q is not absolute", ErrInvalidInput, v)
	}
	if strings.ContainsRune(v, 0) {
		return "", fmt.Errorf("%w: path contains NUL byte", ErrInvalidInput)
	}
	if i := strings.IndexAny(v, shellMetachars); i >= 0 {
		return "", fmt.Errorf("%w: path contains %q", ErrInvalidInput, v[i])
	}
	for _, seg := range strings.Split(v, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: path %q contains traversal segment", ErrInvalidInput, v)
		}
	}
	return v, nil
}

// PackageName validates a package token for install operations
// (Debian-style name grammar).
func PackageName(v string) (string, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" || len(v) > 128 || !packageRe.MatchString(v) {
		return "", fmt.Errorf("%w: malformed package name %q", ErrInvalidInput, v)
	}
	return v, nil
}

// ConfigID validates a Proxmox configuration identifier (snapshot name,
// storage name).
func ConfigID(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 64 || !configIDRe.MatchString(v) {
		return "", fmt.Errorf("%w: malformed identifier %q", ErrInvalidInput, v)
	}
	return v, nil
}

// CommandLine validates a free-form command line for ExecuteCommand. Shell
// metacharacters are permitted here because the line becomes a single argv
// element of `sh -c`; only NUL bytes and unreasonable length are rejected.
func CommandLine(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: empty command", ErrInvalidInput)
	}
	if strings.ContainsRune(v, 0) {
		return "", fmt.Errorf("%w: command contains NUL byte", ErrInvalidInput)
	}
	if len(v) > MaxCommandLength {
		return "", fmt.Errorf("%w: command length %d exceeds maximum %d bytes",
			ErrInvalidInput, len(v), MaxCommandLength)
	}
	return v, nil
}
