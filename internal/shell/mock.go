package shell

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MockExecutor records commands and returns configured responses.
// Responses are matched by command-line prefix and consumed in the order they were added.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	calls    []ExecutorCall
}

// MockCommand defines a mock response for a command prefix.
type MockCommand struct {
	Prefix string
	Output []byte
	Err    error
}

// ExecutorCall records a command invocation.
type ExecutorCall struct {
	Dir  string
	Name string
	Args []string
}

// CommandLine returns the call as a single space separated string.
func (c ExecutorCall) CommandLine() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// NewMockExecutor creates a new mock executor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// AddResponse adds a one-shot response for commands matching the given prefix.
func (m *MockExecutor) AddResponse(prefix string, output []byte, err error) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, MockCommand{Prefix: prefix, Output: output, Err: err})
	return m
}

// Run records the call and returns the first matching response.
func (m *MockExecutor) Run(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := ExecutorCall{Dir: dir, Name: name, Args: args}
	m.calls = append(m.calls, call)

	fullCmd := call.CommandLine()
	for i, cmd := range m.commands {
		if strings.HasPrefix(fullCmd, cmd.Prefix) {
			m.commands = append(m.commands[:i], m.commands[i+1:]...)
			return cmd.Output, cmd.Err
		}
	}

	return nil, errors.New("no mock response configured for: " + fullCmd)
}

// Calls returns all recorded command calls.
func (m *MockExecutor) Calls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExecutorCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CountPrefix returns how many recorded calls start with prefix.
func (m *MockExecutor) CountPrefix(prefix string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.HasPrefix(c.CommandLine(), prefix) {
			n++
		}
	}
	return n
}
