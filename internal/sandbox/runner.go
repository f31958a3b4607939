// Package sandbox smoke-tests generated feature modules in a separate interpreter process.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sha1n/mr-pickles/internal/shell"
)

// ErrSmokeTestFailed is returned when the feature module raises or the interpreter fails.
var ErrSmokeTestFailed = errors.New("feature smoke test failed")

// Defaults.
const (
	DefaultInterpreter = "python3"
	DefaultTimeout     = 10 * time.Second
)

// loader imports the module from argv[1] under a private name and calls
// argv[2] if given. Before the module runs it installs an audit hook that
// denies network access, process creation, file system changes, writes, and
// reads outside the interpreter's own installation and the module itself.
const loader = `import importlib.util, os, sys

MODULE = os.path.realpath(sys.argv[1])
ENTRY = sys.argv[2] if len(sys.argv) > 2 else ""
READ_ROOTS = tuple(sorted({
    os.path.realpath(p)
    for p in (sys.prefix, sys.base_prefix, sys.exec_prefix, sys.base_exec_prefix, *sys.path)
    if p
}))
WRITE_FLAGS = os.O_WRONLY | os.O_RDWR | os.O_CREAT | os.O_TRUNC | os.O_APPEND
DENIED = (
    "socket.", "subprocess.", "os.system", "os.exec", "os.posix_spawn", "os.spawn",
    "os.fork", "os.forkpty", "pty.", "ctypes.", "os.kill", "os.remove", "os.rename",
    "os.rmdir", "os.mkdir", "os.chmod", "os.chown", "os.chflags", "os.symlink", "os.link",
    "os.truncate", "os.utime", "os.putenv", "os.unsetenv", "shutil.", "urllib.",
    "http.", "ftplib.", "smtplib.", "poplib.", "imaplib.", "nntplib.", "telnetlib.",
    "webbrowser.",
)


def readable(path):
    if isinstance(path, int):
        return True
    p = os.path.realpath(os.fsdecode(path))
    return p == MODULE or any(p == r or p.startswith(r + os.sep) for r in READ_ROOTS)


def deny(what):
    raise PermissionError("sandbox: %s is not allowed" % what)


def audit(event, args):
    if event.startswith(DENIED):
        deny(event)
    if event == "open":
        path, mode, flags = args
        writing = (mode is not None and any(c in mode for c in "wax+")) or (flags or 0) & WRITE_FLAGS
        if writing or not readable(path):
            deny("open(%r)" % (path,))
    elif event in ("os.listdir", "os.scandir"):
        if args and args[0] is not None and not readable(args[0]):
            deny("%s(%r)" % (event, args[0]))


spec = importlib.util.spec_from_file_location("feature_under_test", MODULE)
mod = importlib.util.module_from_spec(spec)
sys.addaudithook(audit)
spec.loader.exec_module(mod)
if ENTRY:
    getattr(mod, ENTRY)()
`

// Config controls the interpreter process.
type Config struct {
	Interpreter string
	Timeout     time.Duration
}

// Outcome is the result of a successful smoke test.
type Outcome struct {
	Module     string
	EntryPoint string
	Output     string
	Duration   time.Duration
}

// Runner executes feature modules with an isolated interpreter.
type Runner struct {
	executor shell.CommandExecutor
	cfg      Config
	logger   *slog.Logger
}

// NewRunner creates a runner whose child process sees only PATH from the environment.
func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	executor := &shell.DefaultExecutor{Env: []string{"PATH=" + os.Getenv("PATH")}}
	return NewRunnerWithExecutor(executor, cfg, logger)
}

// NewRunnerWithExecutor creates a runner with a custom executor.
func NewRunnerWithExecutor(executor shell.CommandExecutor, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{executor: executor, cfg: cfg, logger: logger}
}

// SmokeTest imports modulePath and calls entryPoint, if not empty, in a fresh
// isolated interpreter started in a temporary working directory. The module
// may only read itself and the standard library; any other file, network or
// process access fails the test.
func (r *Runner) SmokeTest(ctx context.Context, modulePath, entryPoint string) (*Outcome, error) {
	abs, err := filepath.Abs(modulePath)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "pickles-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := r.executor.Run(ctx, workDir, r.cfg.Interpreter, "-I", "-B", "-c", loader, abs, entryPoint)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", r.cfg.Timeout)
		}
		r.logger.Warn("Smoke test failed", "module", abs, "entry", entryPoint, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSmokeTestFailed, err)
	}

	r.logger.Info("Smoke test passed", "module", abs, "entry", entryPoint, "duration", elapsed)
	return &Outcome{
		Module:     abs,
		EntryPoint: entryPoint,
		Output:     strings.TrimRight(string(out), "\n"),
		Duration:   elapsed,
	}, nil
}
