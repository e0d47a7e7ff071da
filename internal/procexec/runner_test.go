package procexec

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerCapturesBothStreams(t *testing.T) {
	requireShell(t)

	out, err := NewExecRunner().Run(context.Background(), Command{
		Argv: []string{"sh", "-c", "echo out; echo err 1>&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", out.ExitCode)
	}
	if out.Success() {
		t.Error("non-zero exit reported as success")
	}
	want := "out\n\nSTDERR:\nerr\n"
	if got := out.Combined(); got != want {
		t.Errorf("Combined = %q, want %q", got, want)
	}
}

func TestExecRunnerUsesDir(t *testing.T) {
	requireShell(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	out, err := NewExecRunner().Run(context.Background(), Command{
		Argv: []string{"sh", "-c", "pwd -P"},
		Dir:  dir,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(out.Stdout); got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	requireShell(t)

	start := time.Now()
	out, err := NewExecRunner().Run(context.Background(), Command{
		Argv:    []string{"sh", "-c", "echo partial; sleep 10"},
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if !strings.Contains(out.Stdout, "partial") {
		t.Errorf("partial output lost: %q", out.Stdout)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}
}

func TestExecRunnerOutputCeiling(t *testing.T) {
	requireShell(t)

	out, err := NewExecRunner().Run(context.Background(), Command{
		Argv:      []string{"sh", "-c", "while :; do echo 0123456789; done"},
		Timeout:   10 * time.Second,
		MaxOutput: 1024,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Truncated {
		t.Fatal("expected Truncated")
	}
	if n := len(out.Stdout) + len(out.Stderr); n > 1024 {
		t.Errorf("kept %d bytes, limit 1024", n)
	}
	if out.Success() {
		t.Error("truncated run reported as success")
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Command{
		Argv: []string{"definitely-not-a-real-binary-xyz"},
	})
	if err == nil {
		t.Fatal("expected start error")
	}
}

func TestCombined(t *testing.T) {
	tests := []struct {
		stdout, stderr, want string
	}{
		{"a\n", "", "a\n"},
		{"", "b\n", "STDERR:\nb\n"},
		{"a", "b", "a\nSTDERR:\nb"},
	}
	for _, tt := range tests {
		o := &Output{Stdout: tt.stdout, Stderr: tt.stderr}
		if got := o.Combined(); got != tt.want {
			t.Errorf("Combined(%q, %q) = %q, want %q", tt.stdout, tt.stderr, got, tt.want)
		}
	}
}
