package cgibridge

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// runStream forwards CGI output as it is produced. The header block is
// looked for within a bounded window of the live stdout stream; the
// response body then lazily continues that same stream, prefixed with
// whatever was already consumed while scanning. When no header block
// turns up (cap exceeded, early non-header line, or stream end) the
// whole output flows through raw at 200.
func runStream(ctx context.Context, command string, args []string, env map[string]string, body io.Reader) (*Response, error) {
	p, err := startProcess(ctx, command, args, env, body, true)
	if err != nil {
		return nil, err
	}

	var (
		scanner headScanner
		eof     bool
		chunk   = make([]byte, 4096)
	)
	for {
		bodyStart, outcome := scanner.scan()
		switch {
		case outcome == scanFound:
			return headerResponse(p, scanner.buf, bodyStart), nil
		case outcome == scanNone, eof, len(scanner.buf) > maxHeaderLookahead:
			return passthrough(p, scanner.buf), nil
		}

		n, err := p.stdout.Read(chunk)
		if n > 0 {
			scanner.append(chunk[:n])
		}
		if err != nil {
			eof = true
		}
	}
}

func headerResponse(p *childProcess, buf []byte, bodyStart int) *Response {
	status, parsed := parseHead(buf[:bodyStart])
	header := forwardHeader(parsed)
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", defaultContentType)
	}
	// no Content-Length: the body length is unknown until the child is
	// done, the transport frames the response itself
	return &Response{
		StatusCode: status,
		Header:     header,
		Body:       p.streamBody(buf[bodyStart:]),
	}
}

func passthrough(p *childProcess, buffered []byte) *Response {
	header := make(http.Header)
	header.Set("Content-Type", defaultContentType)
	return &Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       p.streamBody(buffered),
	}
}

// streamBody stitches already-consumed bytes back in front of the live
// stdout pipe. Closing the body releases the pipe reader, which stops
// any further reads from the child; the child itself is reaped in the
// background, and its exit status is deliberately ignored since a
// response already in flight cannot be amended.
func (p *childProcess) streamBody(prefix []byte) io.ReadCloser {
	b := &streamBody{proc: p, r: p.stdout}
	if len(prefix) > 0 {
		b.r = io.MultiReader(bytes.NewReader(prefix), p.stdout)
	}
	return b
}

type streamBody struct {
	proc *childProcess
	r    io.Reader
	reap sync.Once
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil {
		b.reapChild()
	}
	return n, err
}

func (b *streamBody) Close() error {
	err := b.proc.stdout.Close()
	b.reapChild()
	return err
}

func (b *streamBody) reapChild() {
	b.reap.Do(func() {
		go func() {
			if err := b.proc.cmd.Wait(); err != nil {
				slog.Debug("CGI program exited", "error", err)
			}
		}()
	})
}
