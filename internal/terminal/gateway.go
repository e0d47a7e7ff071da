// Package terminal runs one-shot shell commands in a resolved working
// directory.
//
// The denylist is a coarse guard against obviously destructive input, not
// a sandbox: anything the server account can do, a permitted caller can do
// from here.
package terminal

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	apperrors "github.com/Shubham6444/host/internal/errors"
	"github.com/Shubham6444/host/internal/logging"
	"github.com/Shubham6444/host/internal/metrics"
	"github.com/Shubham6444/host/internal/procexec"
	"github.com/Shubham6444/host/internal/vfs"
)

// DefaultDenylist holds command fragments that are refused outright.
var DefaultDenylist = []string{
	"rm -rf /",
	"rm -fr /",
	"rm -rf --no-preserve-root",
	"mkfs",
	"dd if=",
	"of=/dev/sd",
	"of=/dev/nvme",
	"> /dev/sd",
	"fdisk",
	"sfdisk",
	"parted",
	"wipefs",
	":(){",
}

// Resolver is the part of vfs.Resolver the gateway needs.
type Resolver interface {
	Resolve(c vfs.Caller, ns vfs.Namespace, rel string) (vfs.ResolvedPath, error)
}

// Config tunes the gateway.
type Config struct {
	Shell     string
	Timeout   time.Duration
	MaxOutput int
	AdminOnly bool
	Denylist  []string
}

// Gateway executes terminal commands through a Runner.
type Gateway struct {
	resolver Resolver
	runner   procexec.Runner
	cfg      Config
}

// NewGateway creates a gateway, filling unset config with the defaults
// of 30s, 1 MiB and /bin/sh.
func NewGateway(resolver Resolver, runner procexec.Runner, cfg Config) *Gateway {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = 1024 * 1024
	}
	if cfg.Denylist == nil {
		cfg.Denylist = DefaultDenylist
	}
	return &Gateway{resolver: resolver, runner: runner, cfg: cfg}
}

// Result is the outcome of a command that was allowed to run.
type Result struct {
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	ExitCode  int    `json:"exitCode"`
	NewPath   string `json:"newPath,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Execute runs commandLine in the directory rel of namespace ns.
//
// Blocked commands return CommandBlocked and never reach the runner. A
// timeout returns CommandTimeout alongside whatever output was captured.
// A non-zero exit is a Result with Success false, not an error.
func (g *Gateway) Execute(ctx context.Context, c vfs.Caller, ns vfs.Namespace, rel, commandLine string) (*Result, error) {
	if g.cfg.AdminOnly && !c.IsAdmin() {
		return nil, apperrors.New(apperrors.KindForbidden, "terminal access requires admin")
	}
	commandLine = strings.TrimSpace(commandLine)
	if commandLine == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "command is required")
	}

	// The namespace gate decides first; blocking is only a content check.
	cwd, err := g.resolver.Resolve(c, ns, rel)
	if err != nil {
		return nil, err
	}

	if frag, blocked := g.blocked(commandLine); blocked {
		metrics.RecordTerminalCommand("blocked", 0)
		logging.WithContext(ctx).Warn("terminal command blocked",
			logging.Int64("user_id", c.UserID),
			logging.String("fragment", frag))
		return nil, apperrors.New(apperrors.KindCommandBlocked, "Command blocked for security reasons")
	}
	if err := g.ensureDir(cwd); err != nil {
		return nil, err
	}

	if target, ok := parseCd(commandLine); ok {
		return g.changeDir(c, cwd, target)
	}

	out, err := g.runner.Run(ctx, procexec.Command{
		Argv:      []string{g.cfg.Shell, "-c", commandLine},
		Dir:       cwd.Abs,
		Timeout:   g.cfg.Timeout,
		MaxOutput: g.cfg.MaxOutput,
	})
	if err != nil {
		metrics.RecordTerminalCommand("failed", 0)
		return nil, apperrors.Wrap(apperrors.KindInternal, "command could not be started", err)
	}

	logging.WithContext(ctx).Info("terminal command executed",
		logging.Int64("user_id", c.UserID),
		logging.String("namespace", string(cwd.Namespace)),
		logging.String("cwd", cwd.Rel),
		logging.Int("exit_code", out.ExitCode),
		logging.Duration("duration", out.Duration))

	if out.TimedOut {
		metrics.RecordTerminalCommand("timeout", out.Duration)
		return &Result{Output: out.Combined(), ExitCode: out.ExitCode}, &apperrors.Error{
			Kind:    apperrors.KindCommandTimeout,
			Op:      "terminal",
			Message: "Command timed out after " + g.cfg.Timeout.String(),
		}
	}

	res := &Result{
		Success:   out.Success(),
		Output:    out.Combined(),
		ExitCode:  out.ExitCode,
		Truncated: out.Truncated,
	}
	if out.Truncated {
		res.Output += "\n[output truncated]"
	}
	if res.Success {
		metrics.RecordTerminalCommand("success", out.Duration)
	} else {
		metrics.RecordTerminalCommand("failed", out.Duration)
	}
	return res, nil
}

// blocked matches the denylist against a lower-cased, whitespace-collapsed
// copy of the command line.
func (g *Gateway) blocked(commandLine string) (string, bool) {
	norm := strings.ToLower(strings.Join(strings.Fields(commandLine), " "))
	for _, frag := range g.cfg.Denylist {
		if strings.Contains(norm, strings.ToLower(frag)) {
			return frag, true
		}
	}
	return "", false
}

// ensureDir checks the working directory. The caller's own sandbox root is
// created on first use; any other missing directory is NotFound.
func (g *Gateway) ensureDir(cwd vfs.ResolvedPath) error {
	fi, err := os.Stat(cwd.Abs)
	if err == nil {
		if !fi.IsDir() {
			return apperrors.New(apperrors.KindInvalidPath, "working directory is not a folder")
		}
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && cwd.Namespace == vfs.NamespaceUser && cwd.IsRoot() {
		if err := os.MkdirAll(cwd.Abs, 0755); err != nil {
			return apperrors.FromOS("mkdir", cwd.Abs, err)
		}
		return nil
	}
	return apperrors.FromOS("stat", cwd.Abs, err)
}

// parseCd recognises a bare "cd [dir]" so the client can track its
// working directory; cd in a longer pipeline runs as a normal command.
func parseCd(commandLine string) (string, bool) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 || fields[0] != "cd" || len(fields) > 2 {
		return "", false
	}
	if strings.ContainsAny(commandLine, ";&|<>$`") {
		return "", false
	}
	if len(fields) == 1 {
		return "/", true
	}
	return fields[1], true
}

func (g *Gateway) changeDir(c vfs.Caller, cwd vfs.ResolvedPath, target string) (*Result, error) {
	var rel string
	switch {
	case target == "~" || target == "/":
		rel = ""
	case strings.HasPrefix(target, "/"):
		rel = target
	default:
		rel = path.Join(cwd.Rel, target)
	}

	next, err := g.resolver.Resolve(c, cwd.Namespace, rel)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(next.Abs)
	if err != nil {
		return nil, apperrors.FromOS("cd", next.Abs, err)
	}
	if !fi.IsDir() {
		return nil, apperrors.Newf(apperrors.KindInvalidPath, "cd: %s: not a directory", target)
	}
	metrics.RecordTerminalCommand("success", 0)
	return &Result{Success: true, NewPath: "/" + next.Rel}, nil
}
