package security

import (
	"errors"
	"strings"
	"testing"
)

func TestHostname(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		shouldErr bool
	}{
		{"ipv4", "10.0.0.5", false},
		{"ipv6", "fe80::1", false},
		{"hostname", "vm-101.lab.example.com", false},
		{"single label", "pve1", false},
		{"empty", "", true},
		{"semicolon injection", "10.0.0.5;reboot", true},
		{"pipe injection", "host|nc", true},
		{"backtick injection", "host`whoami`", true},
		{"space", "two hosts", true},
		{"leading dash", "-host", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Hostname(tt.in)
			if tt.shouldErr != (err != nil) {
				t.Errorf("Hostname(%q) error = %v, shouldErr = %v", tt.in, err, tt.shouldErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Hostname(%q) error not ErrInvalidInput: %v", tt.in, err)
			}
		})
	}
}

func TestGuestPath(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		shouldErr bool
	}{
		{"absolute path", "/etc/nginx/nginx.conf", false},
		{"tmp file", "/tmp/a.txt", false},
		{"path with dots in name", "/opt/app-1.2.3/config", false},
		{"relative path", "etc/passwd", true},
		{"empty", "", true},
		{"traversal", "/var/www/../../etc/shadow", true},
		{"semicolon", "/tmp/x;rm -rf /", true},
		{"pipe", "/tmp/x|tee", true},
		{"ampersand chain", "/tmp/x&&id", true},
		{"backtick", "/tmp/`id`", true},
		{"command substitution", "/tmp/$(id)", true},
		{"newline", "/tmp/a\nreboot", true},
		{"nul byte", "/tmp/a\x00b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GuestPath(tt.in)
			if tt.shouldErr != (err != nil) {
				t.Errorf("GuestPath(%q) error = %v, shouldErr = %v", tt.in, err, tt.shouldErr)
			}
		})
	}
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		in        string
		shouldErr bool
	}{
		{"nginx", false},
		{"docker", false},
		{"g++", false},
		{"libssl1.1", false},
		{"NGINX", false}, // lowered before matching
		{"", true},
		{"nginx; id", true},
		{"nginx|id", true},
		{"-nginx", true},
	}

	for _, tt := range tests {
		if _, err := PackageName(tt.in); tt.shouldErr != (err != nil) {
			t.Errorf("PackageName(%q) error = %v, shouldErr = %v", tt.in, err, tt.shouldErr)
		}
	}
}

func TestNodeName(t *testing.T) {
	if _, err := NodeName("pve-node1"); err != nil {
		t.Errorf("NodeName(pve-node1) unexpected error: %v", err)
	}
	for _, bad := range []string{"", "node;reboot", "node name", "node/", "-node"} {
		if _, err := NodeName(bad); err == nil {
			t.Errorf("NodeName(%q) expected error", bad)
		}
	}
}

func TestConfigID(t *testing.T) {
	if _, err := ConfigID("pre-upgrade_1"); err != nil {
		t.Errorf("ConfigID(pre-upgrade_1) unexpected error: %v", err)
	}
	for _, bad := range []string{"", "snap shot", "snap;shot", "_snap"} {
		if _, err := ConfigID(bad); err == nil {
			t.Errorf("ConfigID(%q) expected error", bad)
		}
	}
}

func TestCommandLine(t *testing.T) {
	// Metacharacters are legal in command lines: the value becomes one argv
	// element of sh -c and is never re-parsed by an extra shell layer.
	if _, err := CommandLine("apt-get update && apt-get upgrade -y"); err != nil {
		t.Errorf("CommandLine with && should pass: %v", err)
	}
	if _, err := CommandLine("echo hi"); err != nil {
		t.Errorf("CommandLine(echo hi) unexpected error: %v", err)
	}

	if _, err := CommandLine(""); err == nil {
		t.Error("empty command should be rejected")
	}
	if _, err := CommandLine("echo \x00"); err == nil {
		t.Error("NUL byte should be rejected")
	}
	if _, err := CommandLine(strings.Repeat("a", MaxCommandLength+1)); err == nil {
		t.Error("oversized command should be rejected")
	}
}
