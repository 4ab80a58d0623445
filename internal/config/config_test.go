package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	c := Defaults()
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := "host: \"127.0.0.1\"\nport: 9000\nhistory_size: 1000\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Host != "127.0.0.1" || c.Port != 9000 || c.HistorySize != 1000 {
		t.Errorf("expected overrides applied, got %+v", c)
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	c := Defaults()
	if err := c.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Errorf("expected missing config file to be a no-op, got %v", err)
	}
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	c := Defaults()
	t.Setenv("WEBTERM_PORT", "9999")
	t.Setenv("WEBTERM_SHELL", "/bin/zsh")
	t.Setenv("WEBTERM_UNSECURE", "true")

	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if c.Port != 9999 {
		t.Errorf("expected port overridden to 9999, got %d", c.Port)
	}
	if c.Shell != "/bin/zsh" {
		t.Errorf("expected shell overridden, got %q", c.Shell)
	}
	if !c.Unsecure {
		t.Error("expected unsecure=true from env")
	}
}

func TestApplyEnvInvalidPortErrors(t *testing.T) {
	c := Defaults()
	t.Setenv("WEBTERM_PORT", "not-a-number")
	if err := c.ApplyEnv(); err == nil {
		t.Error("expected an error for a non-numeric WEBTERM_PORT")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	c := Defaults()
	c.Port = 70000
	if err := c.Validate(); err == nil {
		t.Error("expected validation error for out-of-range port")
	}
}

func TestValidateRejectsNonPositiveHistorySize(t *testing.T) {
	c := Defaults()
	c.HistorySize = 0
	if err := c.Validate(); err == nil {
		t.Error("expected validation error for zero history size")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	c := Defaults()
	c.ConfigPath = filepath.Join(t.TempDir(), "nested", "config.yaml")
	c.Port = 1234

	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := Defaults()
	if err := loaded.LoadFile(c.ConfigPath); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Port != 1234 {
		t.Errorf("expected round-tripped port 1234, got %d", loaded.Port)
	}
}
