// Package toolexec runs external command-line tools and turns a non-zero
// exit into a *ToolError carrying the captured stderr.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/alessio/shellescape"
	log "github.com/sirupsen/logrus"
)

// maxStderr bounds how much stderr is kept in error messages.
const maxStderr = 4096

// ToolError describes a failed tool invocation.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Tool)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// AsToolError extracts a *ToolError from err.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Runner executes tools. The zero value is usable.
type Runner struct {
	Logger log.FieldLogger
}

// Run executes bin with args and returns its stdout.
func (r Runner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	if r.Logger != nil {
		r.Logger.Debugf("exec: %s", CommandLine(bin, args...))
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		te := &ToolError{
			Tool:     toolName(bin),
			Args:     args,
			ExitCode: -1,
			Stderr:   tail(stderr.String(), maxStderr),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			te.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			te.Err = ctxErr
		}
		return stdout.Bytes(), te
	}
	return stdout.Bytes(), nil
}

// CommandLine renders a command for logs, quoted for a POSIX shell.
func CommandLine(bin string, args ...string) string {
	return shellescape.QuoteCommand(append([]string{bin}, args...))
}

func toolName(bin string) string {
	if i := strings.LastIndexAny(bin, `/\`); i >= 0 {
		return bin[i+1:]
	}
	return bin
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
