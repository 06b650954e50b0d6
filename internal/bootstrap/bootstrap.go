package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var lookPath = exec.LookPath

// Options control CLI bootstrap behavior.
type Options struct {
	ConfigPath string
	Scope      string
	ServerName string
	ServeCmd   string
	All        bool
	Codex      bool
	Claude     bool
	Gemini     bool
	DryRun     bool
}

// Command captures an executable command.
type Command struct {
	Name string
	Args []string
}

// Runner executes system commands.
type Runner interface {
	Run(name string, args ...string) error
}

// OSRunner executes commands via os/exec.
type OSRunner struct{}

func (OSRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// cliTarget describes one agent CLI we can register the stdio server with.
type cliTarget struct {
	bin    string
	scoped bool // whether remove/add take a -s scope flag
}

var cliTargets = []cliTarget{
	{bin: "codex", scoped: false},
	{bin: "claude", scoped: true},
	{bin: "gemini", scoped: true},
}

// Bootstrap registers the agentfund stdio server with installed agent CLIs.
func Bootstrap(logger *log.Logger, opts Options, runner Runner) error {
	if runner == nil {
		runner = OSRunner{}
	}
	opts = withDefaults(opts)

	cmds, err := BuildCommands(opts)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return errors.New("no bootstrap commands generated")
	}

	auditPath, err := auditLogPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(auditPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(auditPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "# agentfund-mcp bootstrap %s\n", time.Now().UTC().Format(time.RFC3339))
	for _, c := range cmds {
		line := c.Name + " " + strings.Join(c.Args, " ")
		fmt.Fprintln(f, line)
		logger.Info("bootstrap command", "cmd", line, "dry_run", opts.DryRun)
		if opts.DryRun {
			continue
		}
		if err := runner.Run(c.Name, c.Args...); err != nil {
			// remove may fail when the server was never registered; keep going.
			if strings.Contains(line, " mcp remove ") {
				logger.Debug("ignoring remove error", "cmd", line, "error", err)
				continue
			}
			return fmt.Errorf("run %q: %w", line, err)
		}
	}

	logger.Info("bootstrap complete", "audit_log", auditPath)
	return nil
}

// BuildCommands builds a deterministic bootstrap command list.
func BuildCommands(opts Options) ([]Command, error) {
	opts = withDefaults(opts)
	if opts.Scope != "user" && opts.Scope != "project" {
		return nil, fmt.Errorf("invalid scope %q (expected user or project)", opts.Scope)
	}
	if strings.TrimSpace(opts.ConfigPath) == "" {
		return nil, errors.New("config path is required")
	}

	serveParts := strings.Fields(opts.ServeCmd)
	if len(serveParts) == 0 {
		return nil, errors.New("serve command is required")
	}
	serveCmd := append(serveParts, "--config", opts.ConfigPath)

	wanted := map[string]bool{
		"codex":  opts.All || opts.Codex,
		"claude": opts.All || opts.Claude,
		"gemini": opts.All || opts.Gemini,
	}

	cmds := make([]Command, 0, 2*len(cliTargets))
	for _, target := range cliTargets {
		if !wanted[target.bin] || !commandExists(target.bin) {
			continue
		}
		removeArgs := []string{"mcp", "remove"}
		addArgs := []string{"mcp", "add"}
		if target.scoped {
			removeArgs = append(removeArgs, "-s", opts.Scope)
			addArgs = append(addArgs, "-s", opts.Scope)
		}
		removeArgs = append(removeArgs, opts.ServerName)
		addArgs = append(addArgs, opts.ServerName)
		if target.bin != "gemini" {
			addArgs = append(addArgs, "--")
		}
		addArgs = append(addArgs, serveCmd...)

		cmds = append(cmds,
			Command{Name: target.bin, Args: removeArgs},
			Command{Name: target.bin, Args: addArgs},
		)
	}
	return cmds, nil
}

func withDefaults(opts Options) Options {
	if opts.Scope == "" {
		opts.Scope = "user"
	}
	if opts.ServerName == "" {
		opts.ServerName = "agentfund"
	}
	if strings.TrimSpace(opts.ServeCmd) == "" {
		opts.ServeCmd = "agentfund-mcp serve"
	}
	if !opts.All && !opts.Codex && !opts.Claude && !opts.Gemini {
		opts.All = true
	}
	return opts
}

func commandExists(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

func auditLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".agentfund-mcp", "bootstrap-last.log"), nil
}
