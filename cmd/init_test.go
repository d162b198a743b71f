package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/whaletop/whaletop/internal/templates"
)

func TestInitCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := initCmd

	if cmd.Use != "init" {
		t.Errorf("Expected command use 'init', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Expected command short description to be set")
	}

	if cmd.Long == "" {
		t.Error("Expected command long description to be set")
	}

	if cmd.Example == "" {
		t.Error("Expected command example to be set")
	}
}

func TestInitCmd_Flags(t *testing.T) {
	t.Parallel()

	flags := initCmd.Flags()

	forceFlag := flags.Lookup("force")
	if forceFlag == nil {
		t.Error("Expected 'force' flag to be defined")
		return
	}

	if forceFlag.DefValue != "false" {
		t.Errorf("Expected 'force' flag default to be 'false', got '%s'", forceFlag.DefValue)
	}
}

func TestInitCmd_CreatesFiles(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	defer os.Chdir(origDir) // nolint:errcheck

	if err := initCmd.RunE(initCmd, nil); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	for _, f := range []string{"config.yaml", ".env"} {
		data, err := os.ReadFile(filepath.Join(tmpDir, f))
		if err != nil {
			t.Errorf("Expected %s to exist: %v", f, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("Expected %s to be non-empty", f)
		}
	}

	got, _ := os.ReadFile(filepath.Join(tmpDir, "config.yaml")) // nolint:errcheck
	if !bytes.Equal(got, templates.ConfigYAML) {
		t.Error("Expected config.yaml to match the embedded template")
	}
}

func TestInitCmd_SkipsExistingWithoutForce(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	defer os.Chdir(origDir) // nolint:errcheck

	custom := []byte("docker:\n  socket_path: custom\n")
	if err := os.WriteFile("config.yaml", custom, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	force = false
	if err := initCmd.RunE(initCmd, nil); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	got, err := os.ReadFile("config.yaml")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, custom) {
		t.Error("Expected existing config.yaml to be preserved without --force")
	}
}
