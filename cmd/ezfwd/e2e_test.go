//go:build linux

package main_test

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const e2eDocument = `vm1:
  private_ip: 10.0.0.5
  interface: virbr0
  port_map:
    tcp:
      - [8080, 80]
`

// runHookBinary runs the binary the way libvirt does: four positional
// arguments and settings from the environment only.
func runHookBinary(t *testing.T, env []string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(ezfwdBinary, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// hookEnv returns dry-run settings for a document written into a temp dir.
func hookEnv(t *testing.T, document string) []string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "ezfwd.yaml")
	if err := os.WriteFile(configPath, []byte(document), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return []string{
		"EZFWD_CONFIG=" + configPath,
		"EZFWD_DRY_RUN=true",
		"EZFWD_PUBLIC_IP=198.51.100.9",
		"EZFWD_LOCK_FILE=" + filepath.Join(dir, "ezfwd.lock"),
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func TestE2E_StartAndStopped(t *testing.T) {
	env := hookEnv(t, e2eDocument)

	stdout, stderr, err := runHookBinary(t, env, "vm1", "start", "begin", "-")
	if err != nil {
		t.Fatalf("start failed: %v\nstderr: %s", err, stderr)
	}
	want := "iptables -t nat -I PREROUTING -p tcp -d 198.51.100.9 --dport 8080 -j DNAT --to 10.0.0.5:80\n" +
		"iptables -t filter -I FORWARD -p tcp --dport 80 -j ACCEPT -o virbr0\n"
	if stdout != want {
		t.Errorf("unexpected start output:\n%s", stdout)
	}

	stdout, stderr, err = runHookBinary(t, env, "vm1", "stopped", "end", "-")
	if err != nil {
		t.Fatalf("stopped failed: %v\nstderr: %s", err, stderr)
	}
	if got := strings.Count(stdout, " -D "); got != 2 {
		t.Errorf("expected 2 delete commands, got %d:\n%s", got, stdout)
	}
}

func TestE2E_ExitCodes(t *testing.T) {
	env := hookEnv(t, e2eDocument)
	missing := []string{"EZFWD_CONFIG=" + filepath.Join(t.TempDir(), "missing.json")}
	noLock := append(hookEnv(t, e2eDocument), "EZFWD_LOCK_FILE="+filepath.Join(t.TempDir(), "no", "dir", "ezfwd.lock"))

	tests := []struct {
		name string
		env  []string
		args []string
		code int
	}{
		{"unconfigured domain", env, []string{"vm9", "start", "begin", "-"}, 0},
		{"ignored operation", env, []string{"vm1", "prepare", "begin", "-"}, 0},
		{"unconfigured domain without lock", noLock, []string{"vm9", "prepare", "begin", "-"}, 0},
		{"missing document", append(hookEnv(t, e2eDocument), missing...), []string{"vm1", "start", "begin", "-"}, 1},
		{"lock unavailable", noLock, []string{"vm1", "start", "begin", "-"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := runHookBinary(t, tt.env, tt.args...)
			if got := exitCode(err); got != tt.code {
				t.Errorf("expected exit code %d, got %d (err %v)\nstderr: %s", tt.code, got, err, stderr)
			}
		})
	}
}

func TestE2E_Version(t *testing.T) {
	stdout, _, err := runHookBinary(t, nil, "ctl", "version")
	if err != nil {
		t.Fatalf("ctl version failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "ezfwd version ") {
		t.Errorf("unexpected version output %q", stdout)
	}
}
