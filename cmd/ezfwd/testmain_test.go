//go:build linux

package main_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// ezfwdBinary holds the path to the compiled ezfwd binary used by the e2e tests.
var ezfwdBinary string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "ezfwd-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	ezfwdBinary = filepath.Join(tmpDir, "ezfwd")

	buildCmd := exec.Command("go", "build", "-o", ezfwdBinary, "github.com/easzlab/ezfwd/cmd/ezfwd")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build ezfwd binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}
