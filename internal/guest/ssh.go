package guest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/vmforge/proxmox-mcp/internal/log"
)

// maxSFTPReadBytes bounds a file read over SFTP, mirroring the agent
// endpoint's read cap.
const maxSFTPReadBytes = 16 * 1024 * 1024

// SSHChannel executes guest operations over a transient SSH/SFTP session.
// One connection per call: full connect+auth cost every time, nothing kept
// warm, nothing pooled.
type SSHChannel struct {
	connectTimeout time.Duration
	logger         log.Logger
}

// NewSSHChannel creates an SSHChannel with the given connection-phase
// timeout.
func NewSSHChannel(connectTimeout time.Duration, logger log.Logger) *SSHChannel {
	if connectTimeout <= 0 {
		connectTimeout = DefaultTimeouts.Connect
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &SSHChannel{connectTimeout: connectTimeout, logger: logger}
}

// Execute connects to the guest address, performs op, and tears the session
// down before returning.
func (s *SSHChannel) Execute(ctx context.Context, creds Credentials, op Operation, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	client, err := s.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil && !errors.Is(closeErr, io.EOF) {
			s.logger.Debug("closing ssh connection", "error", closeErr)
		}
	}()

	var res *Result
	switch op.Kind {
	case OpReadFile:
		res, err = s.readFile(client, op)
	case OpWriteFile:
		res, err = s.writeFile(client, op)
	default:
		res, err = s.exec(ctx, client, op)
	}
	if err != nil {
		return nil, err
	}

	res.Channel = ChannelSSH
	res.Duration = time.Since(start)
	return res, nil
}

// connect dials and authenticates. Key material is preferred over a
// password when both are supplied. Connection-phase failures mark the
// channel unusable for this call; there is no retry.
func (s *SSHChannel) connect(ctx context.Context, creds Credentials) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if len(creds.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing private key: %v", ErrAuthFailure, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		auth = append(auth, ssh.Password(creds.Password))
	}

	config := &ssh.ClientConfig{
		User:            creds.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 -- guests are freshly provisioned, host keys unknown by design
		Timeout:         s.connectTimeout,
	}

	addr := net.JoinHostPort(creds.Host, strconv.Itoa(creds.port()))

	dialer := net.Dialer{Timeout: s.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectTimeout, addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "no supported methods remain") {
			return nil, fmt.Errorf("%w: %s: %v", ErrAuthFailure, addr, err)
		}
		return nil, fmt.Errorf("%w: handshake with %s: %v", ErrConnectTimeout, addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// exec runs the operation's command line in one session. A non-zero remote
// exit code is a success result; only transport faults and the local
// deadline are errors.
func (s *SSHChannel) exec(ctx context.Context, client *ssh.Client, op Operation) (*Result, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: opening session: %v", ErrConnectTimeout, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	// The remote shell parses the command string, so the sanitized line is
	// wrapped as a single-quoted sh -c argument to keep it one argv element.
	cmd := "exec /bin/sh -c " + shellQuote(op.shellLine())

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		// Abandon the wait; the remote process may keep running untracked.
		_ = session.Close()
		return nil, fmt.Errorf("ssh command deadline exceeded: %w", context.DeadlineExceeded)
	case err = <-done:
	}

	result := &Result{
		Stdout: truncate(stdout.String()),
		Stderr: truncate(stderr.String()),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, fmt.Errorf("%w: running command: %v", ErrTransfer, err)
	}
	return result, nil
}

func (s *SSHChannel) readFile(client *ssh.Client, op Operation) (*Result, error) {
	ftp, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sftp: %v", ErrTransfer, err)
	}
	defer ftp.Close()

	f, err := ftp.Open(op.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrTransfer, op.Path, err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxSFTPReadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrTransfer, op.Path, err)
	}
	if len(content) > maxSFTPReadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTransferTruncated, op.Path, maxSFTPReadBytes)
	}

	return &Result{Stdout: string(content)}, nil
}

func (s *SSHChannel) writeFile(client *ssh.Client, op Operation) (*Result, error) {
	ftp, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sftp: %v", ErrTransfer, err)
	}
	defer ftp.Close()

	f, err := ftp.Create(op.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", ErrTransfer, op.Path, err)
	}

	if _, err := f.Write(op.Content); err != nil {
		_ = f.Close()
		// Leave no partial file behind.
		_ = ftp.Remove(op.Path)
		return nil, fmt.Errorf("%w: writing %s: %v", ErrTransfer, op.Path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing %s: %v", ErrTransfer, op.Path, err)
	}

	return &Result{}, nil
}

// shellQuote single-quotes a string for a POSIX shell, escaping embedded
// single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
