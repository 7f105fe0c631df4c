package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c := Load()
	if c.StateDir != "/var/lib/retro-cast" {
		t.Fatalf("StateDir = %q", c.StateDir)
	}
	if c.IndexFile("RETRO") != filepath.Join(c.IndexDir, "RETRO.tsv") {
		t.Fatalf("IndexFile = %q", c.IndexFile("RETRO"))
	}
	if c.SocketWait != 10*time.Second {
		t.Fatalf("SocketWait = %v", c.SocketWait)
	}
	if c.BumpersStation != "BUMPERS" || c.CommercialsStation != "COMMERCIALS" {
		t.Fatalf("interstitial stations: %q, %q", c.BumpersStation, c.CommercialsStation)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RETRO_CAST_STATE", "/tmp/rc-state")
	t.Setenv("RETRO_CAST_SOCKET_WAIT", "30s")
	t.Setenv("RETRO_CAST_EPG_REFRESH", "120")
	t.Setenv("RETRO_CAST_MPV_ARGS", "--vo=gpu --hwdec=auto")
	c := Load()
	if c.StateDir != "/tmp/rc-state" {
		t.Fatalf("StateDir = %q", c.StateDir)
	}
	if c.IndexDir != "/tmp/rc-state/index" {
		t.Fatalf("IndexDir should follow StateDir: %q", c.IndexDir)
	}
	if c.SocketWait != 30*time.Second {
		t.Fatalf("SocketWait = %v", c.SocketWait)
	}
	if c.EPGRefresh != 2*time.Minute {
		t.Fatalf("bare-seconds duration: %v", c.EPGRefresh)
	}
	if len(c.MPVArgs) != 2 || c.MPVArgs[0] != "--vo=gpu" {
		t.Fatalf("MPVArgs = %v", c.MPVArgs)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "# comment\n" +
		"RETRO_CAST_TEST_KEY=hello\n" +
		"export RETRO_CAST_TEST_EXPORTED='a b'\n" +
		"RETRO_CAST_TEST_PRESET=from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RETRO_CAST_TEST_KEY", "")
	t.Setenv("RETRO_CAST_TEST_EXPORTED", "")
	t.Setenv("RETRO_CAST_TEST_PRESET", "from-env")
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if v := os.Getenv("RETRO_CAST_TEST_KEY"); v != "hello" {
		t.Fatalf("plain value: %q", v)
	}
	if v := os.Getenv("RETRO_CAST_TEST_EXPORTED"); v != "a b" {
		t.Fatalf("export-prefixed quoted value: %q", v)
	}
	if v := os.Getenv("RETRO_CAST_TEST_PRESET"); v != "from-env" {
		t.Fatalf("environment should win over the file: %q", v)
	}
}

func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		line, key, value string
		ok               bool
	}{
		{"KEY=v", "KEY", "v", true},
		{"export KEY=v", "KEY", "v", true},
		{`KEY="v w"`, "KEY", "v w", true},
		{"KEY=", "KEY", "", true},
		{"# KEY=v", "", "", false},
		{"", "", "", false},
		{"not an assignment", "", "", false},
		{"=v", "", "", false},
	}
	for _, c := range cases {
		key, value, ok := parseEnvLine(c.line)
		if key != c.key || value != c.value || ok != c.ok {
			t.Fatalf("parseEnvLine(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.line, key, value, ok, c.key, c.value, c.ok)
		}
	}
}

func TestLoadEnvFileMissingIsFine(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be skipped: %v", err)
	}
}
