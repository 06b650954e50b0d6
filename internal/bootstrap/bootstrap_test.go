package bootstrap

import (
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func stubLookPath(t *testing.T, installed ...string) {
	t.Helper()
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(name string) (string, error) {
		for _, bin := range installed {
			if bin == name {
				return "/usr/local/bin/" + name, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

func TestBuildCommands_AllInstalled(t *testing.T) {
	stubLookPath(t, "codex", "claude", "gemini")

	cmds, err := BuildCommands(Options{ConfigPath: "/tmp/config.yaml", All: true})
	if err != nil {
		t.Fatalf("BuildCommands: %v", err)
	}
	if len(cmds) != 6 {
		t.Fatalf("expected 6 commands, got %d", len(cmds))
	}

	joined := make([]string, 0, len(cmds))
	for _, c := range cmds {
		joined = append(joined, c.Name+" "+strings.Join(c.Args, " "))
	}
	want := []string{
		"codex mcp remove agentfund",
		"codex mcp add agentfund -- agentfund-mcp serve --config /tmp/config.yaml",
		"claude mcp remove -s user agentfund",
		"claude mcp add -s user agentfund -- agentfund-mcp serve --config /tmp/config.yaml",
		"gemini mcp remove -s user agentfund",
		"gemini mcp add -s user agentfund agentfund-mcp serve --config /tmp/config.yaml",
	}
	for i, w := range want {
		if joined[i] != w {
			t.Fatalf("command %d: got %q, want %q", i, joined[i], w)
		}
	}
}

func TestBuildCommands_SingleCLISelection(t *testing.T) {
	stubLookPath(t, "codex", "claude", "gemini")

	cmds, err := BuildCommands(Options{ConfigPath: "/tmp/config.yaml", Claude: true})
	if err != nil {
		t.Fatalf("BuildCommands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	for _, c := range cmds {
		if c.Name != "claude" {
			t.Fatalf("expected only claude commands, got %q", c.Name)
		}
	}
}

func TestBuildCommands_SkipsMissingCLIs(t *testing.T) {
	stubLookPath(t, "claude")

	cmds, err := BuildCommands(Options{ConfigPath: "/tmp/config.yaml", All: true})
	if err != nil {
		t.Fatalf("BuildCommands: %v", err)
	}
	for _, c := range cmds {
		if c.Name != "claude" {
			t.Fatalf("expected commands only for installed CLIs, got %q", c.Name)
		}
	}
}

func TestBuildCommands_RejectsBadScope(t *testing.T) {
	stubLookPath(t, "claude")

	_, err := BuildCommands(Options{ConfigPath: "/tmp/config.yaml", Scope: "global"})
	if err == nil {
		t.Fatal("expected error for invalid scope")
	}
}

func TestBuildCommands_RequiresConfigPath(t *testing.T) {
	stubLookPath(t, "claude")

	_, err := BuildCommands(Options{ConfigPath: "  "})
	if err == nil {
		t.Fatal("expected error for empty config path")
	}
}

type recordingRunner struct {
	calls []string
	fail  map[string]error
}

func (r *recordingRunner) Run(name string, args ...string) error {
	line := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, line)
	if err, ok := r.fail[line]; ok {
		return err
	}
	return nil
}

func TestBootstrap_DryRunExecutesNothing(t *testing.T) {
	stubLookPath(t, "claude")
	t.Setenv("HOME", t.TempDir())

	runner := &recordingRunner{}
	err := Bootstrap(discardLogger(), Options{ConfigPath: "/tmp/config.yaml", DryRun: true}, runner)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("dry run should not execute commands, ran %d", len(runner.calls))
	}
}

func TestBootstrap_IgnoresRemoveFailures(t *testing.T) {
	stubLookPath(t, "claude")
	t.Setenv("HOME", t.TempDir())

	runner := &recordingRunner{fail: map[string]error{
		"claude mcp remove -s user agentfund": errors.New("not registered"),
	}}
	err := Bootstrap(discardLogger(), Options{ConfigPath: "/tmp/config.yaml"}, runner)
	if err != nil {
		t.Fatalf("Bootstrap should tolerate remove failures: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected remove and add to run, got %d calls", len(runner.calls))
	}
}
