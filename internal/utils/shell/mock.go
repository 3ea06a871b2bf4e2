package shell

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockCommand is a canned response for any command line containing Pattern.
// Responses, when set, are consumed one per matching call; the last one
// repeats.
type MockCommand struct {
	Pattern   string
	Output    string
	Stderr    string
	ExitCode  int
	Error     error
	Responses []MockResponse
}

// MockResponse is one step in a sequence of results for a MockCommand.
type MockResponse struct {
	Output   string
	Stderr   string
	ExitCode int
	Error    error
}

// MockCall records one Run invocation.
type MockCall struct {
	Argv []string
	Opts Options
}

// MockExecutor answers Run calls from a fixed table instead of spawning
// processes.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	served   map[int]int
	Calls    []MockCall
}

// NewMockExecutor returns an executor that serves the given commands in
// table order; the first matching pattern wins.
func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{
		commands: commands,
		served:   make(map[int]int),
	}
}

func (m *MockExecutor) Run(ctx context.Context, argv []string, opts Options) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Argv: append([]string(nil), argv...), Opts: opts})
	cmdStr := strings.Join(argv, " ")

	for i, mc := range m.commands {
		if !strings.Contains(cmdStr, mc.Pattern) {
			continue
		}
		if len(mc.Responses) > 0 {
			n := m.served[i]
			if n >= len(mc.Responses) {
				n = len(mc.Responses) - 1
			}
			m.served[i]++
			r := mc.Responses[n]
			return Result{ExitCode: r.ExitCode, Stdout: r.Output, Stderr: r.Stderr}, r.Error
		}
		return Result{ExitCode: mc.ExitCode, Stdout: mc.Output, Stderr: mc.Stderr}, mc.Error
	}

	return Result{ExitCode: -1}, fmt.Errorf("no mock registered for command: %s", cmdStr)
}

// CallCount returns how many recorded calls contain pattern.
func (m *MockExecutor) CallCount(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.Calls {
		if strings.Contains(strings.Join(c.Argv, " "), pattern) {
			n++
		}
	}
	return n
}
