//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package runner

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/easzlab/ezfwd/pkg/firewall"
	"go.uber.org/zap"
)

func TestRun_LockFileUnavailable(t *testing.T) {
	settings := newTestSettings(t, writeDocument(t, testDocument))
	settings.LockFile = filepath.Join(t.TempDir(), "no", "such", "dir", "ezfwd.lock")

	r, err := newRunnerWithDeps(settings, &countingResolver{ip: net.ParseIP("198.51.100.9")}, firewall.NewFakeApplier(), zap.NewNop())
	if err != nil {
		t.Fatalf("newRunnerWithDeps failed: %v", err)
	}
	if _, err := r.Run("vm1", "start"); err == nil {
		t.Fatal("expected lock error, got nil")
	}
}

func TestRun_NoopSkipsLock(t *testing.T) {
	settings := newTestSettings(t, writeDocument(t, testDocument))
	settings.LockFile = filepath.Join(t.TempDir(), "no", "such", "dir", "ezfwd.lock")
	applier := firewall.NewFakeApplier()

	r, err := newRunnerWithDeps(settings, &countingResolver{ip: net.ParseIP("198.51.100.9")}, applier, zap.NewNop())
	if err != nil {
		t.Fatalf("newRunnerWithDeps failed: %v", err)
	}

	tests := []struct {
		name    string
		domain  string
		event   string
		managed bool
	}{
		{"unconfigured domain", "vm9", "prepare", false},
		{"unconfigured domain on start", "vm9", "start", false},
		{"ignored event", "vm1", "release", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := r.Run(tt.domain, tt.event)
			if err != nil {
				t.Fatalf("expected no error without taking the lock, got %v", err)
			}
			if report.Managed != tt.managed {
				t.Errorf("expected managed=%v, got %v", tt.managed, report.Managed)
			}
		})
	}
	if len(applier.Calls()) != 0 {
		t.Errorf("expected no applications, got %d", len(applier.Calls()))
	}
}
