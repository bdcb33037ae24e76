package cgibridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// runBatch waits for the CGI program to finish and assembles one
// complete response from everything it wrote.
func runBatch(ctx context.Context, command string, args []string, env map[string]string, body io.Reader) (*Response, error) {
	p, err := startProcess(ctx, command, args, env, body, false)
	if err != nil {
		return nil, err
	}

	out, err := io.ReadAll(p.stdout)
	if err != nil {
		slog.Warn("reading CGI stdout", "error", err)
	}
	exitCode := p.wait()
	stderr := p.stderr.Bytes()

	head, rest, ok := splitHead(out)
	if !ok {
		return rawFallback(out, stderr, exitCode), nil
	}

	status, parsed := parseHead(head)
	header := forwardHeader(parsed)
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", defaultContentType)
	}
	if exitCode != 0 {
		header.Set(exitCodeHeader, strconv.Itoa(exitCode))
	}
	if len(stderr) > 0 {
		header.Set(stderrHeader, sanitizeStderr(stderr))
	}
	if header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.Itoa(len(rest)))
	}

	return &Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(rest)),
	}, nil
}

// rawFallback handles output with no detectable header block. A clean
// exit with output is passed through untouched at 200; anything else
// becomes a 500 carrying whatever diagnostics the child left behind.
func rawFallback(out, stderr []byte, exitCode int) *Response {
	header := make(http.Header)
	header.Set("Content-Type", defaultContentType)
	header.Set(exitCodeHeader, strconv.Itoa(exitCode))
	if len(stderr) > 0 {
		header.Set(stderrHeader, sanitizeStderr(stderr))
	}

	status := http.StatusInternalServerError
	respBody := out
	switch {
	case exitCode == 0 && len(out) > 0:
		status = http.StatusOK
	case len(out) == 0:
		respBody = stderr
	}
	header.Set("Content-Length", strconv.Itoa(len(respBody)))

	return &Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(respBody)),
	}
}

// sanitizeStderr folds collected stderr into a single header-safe line
// capped at maxStderrHeader characters.
func sanitizeStderr(stderr []byte) string {
	s := string(stderr)
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) > maxStderrHeader {
		s = s[:maxStderrHeader]
	}
	return s
}
