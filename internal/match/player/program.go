package player

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// interpreters maps script extensions to the command line that runs them.
// Python players run unbuffered so every printed move reaches the pipe.
var interpreters = map[string][]string{
	".py": {"python3", "-u"},
}

// Sandbox describes the container a player runs in when sandboxing is on:
// no network, capped CPU and memory, and the player file mounted read-only.
type Sandbox struct {
	// Runtime is the container CLI; docker when empty.
	Runtime string
	Image   string
	CPUs    string
	Memory  string
}

// DefaultSandbox matches the limits players are expected to run within.
var DefaultSandbox = Sandbox{
	Runtime: "docker",
	Image:   "python:3.11-alpine",
	CPUs:    "0.5",
	Memory:  "128m",
}

// sandboxDir is where the player file is mounted inside the sandbox.
const sandboxDir = "/app"

// Program describes how to launch one player.
type Program struct {
	Path string
	Args []string
	// Env entries are appended to the harness environment.
	Env []string
	Dir string
}

// ParseProgram splits a whitespace separated command line into a Program.
// Quoting is not supported; use Program directly for paths with spaces.
func ParseProgram(line string) (Program, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Program{}, fmt.Errorf("player program is required")
	}
	return Program{Path: fields[0], Args: fields[1:]}, nil
}

// String renders the program as it was given.
func (p Program) String() string {
	return strings.Join(append([]string{p.Path}, p.Args...), " ")
}

// command builds the exec.Cmd for the program, resolving interpreters for
// known script types. With a sandbox the program runs inside a container.
func (p Program) command(sandbox *Sandbox) (*exec.Cmd, error) {
	if strings.TrimSpace(p.Path) == "" {
		return nil, fmt.Errorf("player program is required")
	}
	interpreter, script := interpreters[strings.ToLower(filepath.Ext(p.Path))]
	if script || sandbox != nil {
		// The interpreter and the container runtime both start for a missing
		// file, so check it here to fail at launch instead of at the first move.
		if _, err := os.Stat(p.Path); err != nil {
			return nil, fmt.Errorf("player program: %w", err)
		}
	}
	if sandbox != nil {
		return p.sandboxed(*sandbox, interpreter)
	}

	var cmd *exec.Cmd
	if script {
		args := append(append(append([]string{}, interpreter[1:]...), p.Path), p.Args...)
		cmd = exec.Command(interpreter[0], args...)
	} else {
		cmd = exec.Command(p.Path, p.Args...)
	}
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	cmd.Dir = p.Dir
	return cmd, nil
}

// sandboxed mounts the program file read-only and runs it with networking
// disabled and swap capped at the memory limit. Env entries are passed into
// the container; Dir is ignored.
func (p Program) sandboxed(sandbox Sandbox, interpreter []string) (*exec.Cmd, error) {
	host, err := filepath.Abs(p.Path)
	if err != nil {
		return nil, fmt.Errorf("player program: %w", err)
	}
	def := DefaultSandbox
	if sandbox.Runtime == "" {
		sandbox.Runtime = def.Runtime
	}
	if sandbox.Image == "" {
		sandbox.Image = def.Image
	}
	if sandbox.CPUs == "" {
		sandbox.CPUs = def.CPUs
	}
	if sandbox.Memory == "" {
		sandbox.Memory = def.Memory
	}

	target := sandboxDir + "/" + filepath.Base(host)
	args := []string{
		"run", "--rm", "-i",
		"--network", "none",
		"--cpus", sandbox.CPUs,
		"--memory", sandbox.Memory,
		"--memory-swap", sandbox.Memory,
		"-v", host + ":" + target + ":ro",
		"-w", sandboxDir,
	}
	for _, env := range p.Env {
		args = append(args, "-e", env)
	}
	args = append(args, sandbox.Image)
	args = append(args, interpreter...)
	args = append(args, target)
	args = append(args, p.Args...)
	return exec.Command(sandbox.Runtime, args...), nil
}
