package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sha1n/mr-pickles/internal/shell"
)

func TestSmokeTest_InvokesIsolatedInterpreter(t *testing.T) {
	mock := shell.NewMockExecutor().AddResponse("python3 -I -B -c", []byte("tick\n"), nil)
	r := NewRunnerWithExecutor(mock, Config{}, nil)

	out, err := r.SmokeTest(context.Background(), "features/clock.py", "show_clock")
	if err != nil {
		t.Fatalf("SmokeTest failed: %v", err)
	}
	if out.Output != "tick" {
		t.Errorf("Output = %q, want %q", out.Output, "tick")
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
	call := calls[0]
	if call.Dir == "" || call.Dir == "." {
		t.Errorf("Expected a temporary working directory, got %q", call.Dir)
	}
	if _, err := os.Stat(call.Dir); !os.IsNotExist(err) {
		t.Errorf("Expected sandbox directory %q to be removed", call.Dir)
	}
	args := call.Args
	if !filepath.IsAbs(args[4]) || !strings.HasSuffix(args[4], filepath.Join("features", "clock.py")) {
		t.Errorf("Expected absolute module path, got %q", args[4])
	}
	if args[5] != "show_clock" {
		t.Errorf("Entry point = %q, want %q", args[5], "show_clock")
	}
}

func TestSmokeTest_Failure(t *testing.T) {
	mock := shell.NewMockExecutor().AddResponse("python3", nil, errors.New("ZeroDivisionError: division by zero"))
	r := NewRunnerWithExecutor(mock, Config{}, nil)

	_, err := r.SmokeTest(context.Background(), "m.py", "main")
	if !errors.Is(err, ErrSmokeTestFailed) {
		t.Fatalf("Expected ErrSmokeTestFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "ZeroDivisionError") {
		t.Errorf("Expected captured exception in error, got %v", err)
	}
}

func TestNewRunnerWithExecutor_Defaults(t *testing.T) {
	r := NewRunnerWithExecutor(shell.NewMockExecutor(), Config{}, nil)
	if r.cfg.Interpreter != DefaultInterpreter {
		t.Errorf("Interpreter = %q, want %q", r.cfg.Interpreter, DefaultInterpreter)
	}
	if r.cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", r.cfg.Timeout, DefaultTimeout)
	}
}

func TestSmokeTest_RealInterpreter(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	dir := t.TempDir()
	good := filepath.Join(dir, "good.py")
	bad := filepath.Join(dir, "bad.py")
	if err := os.WriteFile(good, []byte("def hello():\n    print('hi')\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("def boom():\n    raise RuntimeError('nope')\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(Config{Timeout: 30 * time.Second}, nil)

	out, err := r.SmokeTest(context.Background(), good, "hello")
	if err != nil {
		t.Fatalf("SmokeTest(good) failed: %v", err)
	}
	if out.Output != "hi" {
		t.Errorf("Output = %q, want %q", out.Output, "hi")
	}

	if _, err := r.SmokeTest(context.Background(), bad, "boom"); !errors.Is(err, ErrSmokeTestFailed) {
		t.Errorf("Expected ErrSmokeTestFailed for raising entry point, got %v", err)
	}
}

func TestSmokeTest_RealInterpreterDeniesSideEffects(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(secret, []byte("TOPSECRET"), 0600); err != nil {
		t.Fatal(err)
	}
	written := filepath.Join(dir, "pwned")

	tests := []struct {
		name   string
		source string
	}{
		{
			name:   "write outside module",
			source: "def run():\n    with open(" + pyQuote(written) + ", 'w') as f:\n        f.write('x')\n",
		},
		{
			name:   "low level create",
			source: "import os\n\ndef run():\n    os.close(os.open(" + pyQuote(written) + ", os.O_WRONLY | os.O_CREAT))\n",
		},
		{
			name:   "read private file",
			source: "def run():\n    print(open(" + pyQuote(secret) + ").read())\n",
		},
		{
			name:   "list directory",
			source: "import os\n\ndef run():\n    print(os.listdir(" + pyQuote(dir) + "))\n",
		},
		{
			name:   "socket connect",
			source: "import socket\n\ndef run():\n    socket.create_connection(('127.0.0.1', 9), timeout=1)\n",
		},
		{
			name:   "subprocess",
			source: "import subprocess\n\ndef run():\n    subprocess.run(['true'])\n",
		},
		{
			name:   "os system",
			source: "import os\n\ndef run():\n    os.system('true')\n",
		},
		{
			name:   "side effect at import",
			source: "open(" + pyQuote(written) + ", 'w').write('x')\n\ndef run():\n    pass\n",
		},
	}

	r := NewRunner(Config{Timeout: 30 * time.Second}, nil)
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			module := filepath.Join(dir, fmt.Sprintf("feature_%d.py", i))
			if err := os.WriteFile(module, []byte(tt.source), 0644); err != nil {
				t.Fatal(err)
			}

			out, err := r.SmokeTest(context.Background(), module, "run")
			if !errors.Is(err, ErrSmokeTestFailed) {
				t.Fatalf("Expected ErrSmokeTestFailed, got output %+v, err %v", out, err)
			}
			if !strings.Contains(err.Error(), "sandbox:") {
				t.Errorf("Expected sandbox denial in error, got %v", err)
			}
			if strings.Contains(err.Error(), "TOPSECRET") {
				t.Errorf("Secret leaked into error: %v", err)
			}
			if _, statErr := os.Stat(written); !os.IsNotExist(statErr) {
				t.Errorf("Expected %s not to be written", written)
			}
		})
	}
}

func TestSmokeTest_RealInterpreterAllowsStandardLibrary(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	module := filepath.Join(t.TempDir(), "stdlib_user.py")
	source := "def run():\n    import json, textwrap\n    print(json.dumps({'a': textwrap.dedent('  x')}))\n"
	if err := os.WriteFile(module, []byte(source), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(Config{Timeout: 30 * time.Second}, nil)
	out, err := r.SmokeTest(context.Background(), module, "run")
	if err != nil {
		t.Fatalf("SmokeTest failed: %v", err)
	}
	if out.Output != `{"a": "x"}` {
		t.Errorf("Output = %q, want %q", out.Output, `{"a": "x"}`)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(module), "__pycache__")); !os.IsNotExist(err) {
		t.Errorf("Expected no bytecode cache next to the module")
	}
}

func pyQuote(s string) string {
	return strconv.Quote(s)
}
