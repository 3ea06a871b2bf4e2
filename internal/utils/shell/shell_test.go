package shell_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/megaguards/mg-setup/internal/utils/shell"
)

func TestRun(t *testing.T) {
	res, err := shell.Default.Run(context.Background(), []string{"echo", "test-run"}, shell.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "test-run") {
		t.Errorf("Expected output to contain 'test-run', got: %s", res.Stdout)
	}
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	res, err := shell.Default.Run(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, shell.Options{})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error, got: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("expected stderr to be captured, got: %q", res.Stderr)
	}
}

func TestRunCwd(t *testing.T) {
	dir := t.TempDir()
	res, err := shell.Default.Run(context.Background(), []string{"pwd"}, shell.Options{Cwd: dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(res.Stdout, dir) {
		t.Errorf("expected pwd output to contain %s, got %s", dir, res.Stdout)
	}
}

func TestRunTeeStillCaptures(t *testing.T) {
	res, err := shell.Default.Run(context.Background(), []string{"sh", "-c", "echo line1; echo line2"}, shell.Options{Tee: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stdout != "line1\nline2\n" {
		t.Errorf("unexpected captured output: %q", res.Stdout)
	}
}

func TestRunStdin(t *testing.T) {
	res, err := shell.Default.Run(context.Background(), []string{"cat"}, shell.Options{Stdin: "input-line"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "input-line") {
		t.Errorf("Expected output to contain 'input-line', got: %s", res.Stdout)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	_, err := shell.Default.Run(context.Background(), []string{"definitely-not-a-real-command-xyz"}, shell.Options{})
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
}

func TestRunEmptyArgv(t *testing.T) {
	if _, err := shell.Default.Run(context.Background(), nil, shell.Options{}); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

func TestRunContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := shell.Default.Run(ctx, []string{"sleep", "5"}, shell.Options{})
	if err == nil {
		t.Fatal("expected an error when the context expires")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestExecCmd(t *testing.T) {
	out, err := shell.ExecCmd(context.Background(), nil, []string{"echo", "test-exec-cmd"}, shell.Options{})
	if err != nil {
		t.Fatalf("ExecCmd failed: %v", err)
	}
	if !strings.Contains(out, "test-exec-cmd") {
		t.Errorf("Expected output to contain 'test-exec-cmd', got: %s", out)
	}

	_, err = shell.ExecCmd(context.Background(), nil, []string{"sh", "-c", "echo broken >&2; exit 4"}, shell.Options{})
	if err == nil {
		t.Fatal("ExecCmd should fail on non-zero exit")
	}
	if !strings.Contains(err.Error(), "status 4") || !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should carry the exit status and stderr, got: %v", err)
	}
}

func TestExecCmdExecutor(t *testing.T) {
	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "make", Responses: []shell.MockResponse{{ExitCode: 2}}},
	})
	_, err := shell.ExecCmd(context.Background(), mock, []string{"make"}, shell.Options{Cwd: "/tmp"})
	if err == nil || err.Error() != "make exited with status 2" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecCmdOverride(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()
	mockExpectedOutput := []shell.MockCommand{
		{Pattern: "echo test-exec-cmd-override", Output: "override-test\n", Error: nil},
	}
	shell.Default = shell.NewMockExecutor(mockExpectedOutput)
	out, err := shell.ExecCmd(context.Background(), nil, []string{"echo", "test-exec-cmd-override"}, shell.Options{})
	if err != nil {
		t.Fatalf("ExecCmd with override failed: %v", err)
	}
	if !strings.Contains(out, "override-test") {
		t.Errorf("Expected output to contain 'override-test', got: %s", out)
	}
}

func TestMockExecutorResponsesSequence(t *testing.T) {
	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: "junit", Responses: []shell.MockResponse{
			{ExitCode: 1},
			{ExitCode: 0, Output: "ok"},
		}},
	})

	first, _ := mock.Run(context.Background(), []string{"mx", "junit-mg-core"}, shell.Options{})
	second, _ := mock.Run(context.Background(), []string{"mx", "junit-mg-core"}, shell.Options{})
	third, _ := mock.Run(context.Background(), []string{"mx", "junit-mg-core"}, shell.Options{})

	if first.ExitCode != 1 || second.ExitCode != 0 || third.ExitCode != 0 {
		t.Errorf("unexpected exit codes: %d %d %d", first.ExitCode, second.ExitCode, third.ExitCode)
	}
	if mock.CallCount("junit") != 3 {
		t.Errorf("expected 3 recorded calls, got %d", mock.CallCount("junit"))
	}
}

func TestMockExecutorUnmatched(t *testing.T) {
	mock := shell.NewMockExecutor(nil)
	if _, err := mock.Run(context.Background(), []string{"ls"}, shell.Options{}); err == nil {
		t.Error("expected an error for an unmatched command")
	}
}

func TestGetOSEnvirons(t *testing.T) {
	t.Setenv("MG_SHELL_TEST", "a=b")
	env := shell.GetOSEnvirons()
	if env["MG_SHELL_TEST"] != "a=b" {
		t.Errorf("expected value with embedded '=' to survive, got %q", env["MG_SHELL_TEST"])
	}
}

func TestGetOSProxyEnvirons(t *testing.T) {
	t.Setenv("HTTPS_PROXY", "http://proxy:3128")
	t.Setenv("no_proxy", "localhost")
	t.Setenv("MG_HOME", "/opt/mg")

	env := shell.GetOSProxyEnvirons()
	if env["HTTPS_PROXY"] != "http://proxy:3128" || env["no_proxy"] != "localhost" {
		t.Errorf("expected proxy variables, got %v", env)
	}
	if _, ok := env["MG_HOME"]; ok {
		t.Error("non-proxy variable leaked into proxy environment")
	}
}
