package cmd

import (
	"os"
	"strings"
	"testing"
)

func TestExecuteUnknownCommand(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"proxmox-mcp", "bogus"}
	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("Execute() error = %v, want unknown command", err)
	}
}

func TestExecuteVersion(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	for _, arg := range []string{"version", "--version", "-v"} {
		os.Args = []string{"proxmox-mcp", arg}
		if err := Execute(); err != nil {
			t.Errorf("Execute(%s) error = %v", arg, err)
		}
	}
}

func TestExecuteHelp(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"proxmox-mcp"}
	if err := Execute(); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
}
