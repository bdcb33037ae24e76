package cgibridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
)

// childProcess owns the standard streams of one spawned CGI program
// for the duration of one request.
type childProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer // nil in streaming mode
}

// environSlice flattens the variable mapping for exec, sorted for
// reproducibility, with the parent PATH carried over so scripts can
// find their interpreters.
func environSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	if _, ok := env["PATH"]; !ok {
		out = append(out, "PATH="+os.Getenv("PATH"))
	}
	return out
}

// startProcess launches the CGI program and begins forwarding the
// request body to its stdin. The pump is a detached goroutine whose
// failure is logged and dropped: a broken pipe must not fail a request
// the child may already have answered. stderr is collected in batch
// mode and discarded in streaming mode, where nobody would ever read
// it. Launch failure is the one hard error of the whole package.
func startProcess(ctx context.Context, command string, args []string, env map[string]string, body io.Reader, streaming bool) (*childProcess, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = environSlice(env)

	p := &childProcess{cmd: cmd}
	if !streaming {
		p.stderr = &bytes.Buffer{}
		cmd.Stderr = p.stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("preparing stdout pipe: %w", err)
	}
	p.stdout = stdout

	var stdin io.WriteCloser
	if body != nil {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("preparing stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting CGI program %s: %w", command, err)
	}

	if stdin != nil {
		go func() {
			if _, err := io.Copy(stdin, body); err != nil {
				slog.Debug("request body pump interrupted", "error", err)
			}
			stdin.Close()
		}()
	}

	return p, nil
}

// wait reaps the child and maps its termination to an exit code.
func (p *childProcess) wait() int {
	err := p.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	slog.Warn("waiting for CGI program", "error", err)
	return -1
}
