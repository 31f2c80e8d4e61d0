package guest

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vmforge/proxmox-mcp/internal/proxmox"
	"github.com/vmforge/proxmox-mcp/internal/security"
)

// Target identifies one guest on the cluster. Immutable per request.
type Target struct {
	Node string
	VMID int
	Type proxmox.GuestType
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s/%d", t.Node, t.Type, t.VMID)
}

// validate checks the target fields against the sanitizer grammars.
func (t Target) validate() error {
	if _, err := security.NodeName(t.Node); err != nil {
		return err
	}
	if t.VMID <= 0 {
		return fmt.Errorf("%w: vmid %d", security.ErrInvalidInput, t.VMID)
	}
	switch t.Type {
	case proxmox.GuestQemu, proxmox.GuestLXC:
		return nil
	default:
		return fmt.Errorf("%w: guest type %q", security.ErrInvalidInput, t.Type)
	}
}

// DefaultSSHPort is used when the caller supplies no port.
const DefaultSSHPort = 22

// Credentials are optional SSH parameters attached to a single request.
// They are scoped to that call: never persisted, never pooled, and the
// redacting LogValue keeps secrets out of log records.
type Credentials struct {
	Host       string
	User       string
	Password   string
	PrivateKey []byte
	Port       int
}

// usable reports whether the credentials carry enough to open an SSH
// channel: an address plus at least one authentication method.
func (c Credentials) usable() bool {
	return strings.TrimSpace(c.Host) != "" &&
		strings.TrimSpace(c.User) != "" &&
		(c.Password != "" || len(c.PrivateKey) > 0)
}

func (c Credentials) port() int {
	if c.Port > 0 {
		return c.Port
	}
	return DefaultSSHPort
}

// validate checks the address grammar. Secrets are deliberately not
// inspected beyond presence.
func (c Credentials) validate() error {
	if _, err := security.Hostname(c.Host); err != nil {
		return err
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: ssh port %d", security.ErrInvalidInput, c.Port)
	}
	return nil
}

// String redacts secrets.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s:%d", c.User, c.Host, c.port())
}

// LogValue implements slog.LogValuer; password and key material never reach
// log records.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", c.Host),
		slog.String("user", c.User),
		slog.Int("port", c.port()),
		slog.Bool("has_password", c.Password != ""),
		slog.Bool("has_key", len(c.PrivateKey) > 0),
	)
}
