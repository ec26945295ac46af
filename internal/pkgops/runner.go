package pkgops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/ralt/pkgcatalog/internal/models"
)

// Command describes one external process invocation
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Stdin io.Reader
}

// String returns the command line
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured output of a finished process
type Result struct {
	Stdout string
	Stderr string
	Err    error // start or exit failure
}

// Runner executes external commands and waits for them to exit
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// Run starts cmd and waits for it to exit
func (ExecRunner) Run(ctx context.Context, cmd Command) Result {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

// check turns a result into an error. Any output on stderr is a failure,
// even when the process exits zero.
func check(cmd Command, res Result) error {
	stderr := strings.TrimSpace(res.Stderr)
	if res.Err == nil && stderr == "" {
		return nil
	}

	err := res.Err
	if err == nil {
		err = fmt.Errorf("unexpected error output")
	}
	return &models.CatalogError{
		Type: models.ErrCommand,
		Path: cmd.Name,
		Err:  &models.CommandError{Command: cmd.String(), Stderr: stderr, Err: err},
	}
}
