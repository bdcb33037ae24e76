// Package cgibridge translates an inbound HTTP request into a CGI/1.1
// invocation of an external program and the program's raw output back
// into an HTTP response. Each invocation is one-shot: one request, one
// child process, no pooling.
package cgibridge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

const (
	defaultServerSoftware = "cgi-bridge"
	defaultContentType    = "application/octet-stream"

	exitCodeHeader  = "X-CGI-Exit-Code"
	stderrHeader    = "X-CGI-StdErr"
	maxStderrHeader = 1024
)

// Options configures a single CGI invocation. The zero value selects
// batch mode with everything derived from the request.
type Options struct {
	// Streaming forwards the program output incrementally instead of
	// buffering the complete response. Streamed responses carry no
	// Content-Length, so the transport must use chunked framing.
	Streaming bool

	// Env holds extra environment variables for the program. Variables
	// computed from the request always win over Env entries of the
	// same name, so callers cannot break the CGI contract by accident.
	Env map[string]string

	ServerSoftware  string // SERVER_SOFTWARE, default "cgi-bridge"
	ServerProtocol  string // SERVER_PROTOCOL, default "HTTP/1.1"
	ServerPort      string // overrides the port taken from the Host header
	RemoteAddr      string // REMOTE_ADDR, default derived from the request
	RemoteHost      string // REMOTE_HOST, default same as REMOTE_ADDR
	ScriptName      string // SCRIPT_NAME
	PathInfo        string // PATH_INFO
	PathTranslated  string // PATH_TRANSLATED
	NetworkProtocol string // overrides the protocol taken from the URL scheme
}

// Response is the HTTP view of one CGI program run. In batch mode the
// body is fully materialized; in streaming mode it reads live from the
// program and must be closed by the consumer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Invoke runs command once against r and returns the program output as
// an HTTP response. Malformed program output degrades to a passthrough
// or diagnostic response, never an error; the only hard failure is
// being unable to launch the program at all. Callers wanting a timeout
// bound the whole invocation through ctx.
func Invoke(ctx context.Context, command string, args []string, r *http.Request, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	env := BuildEnv(r, opts)

	body := r.Body
	if body == http.NoBody || r.ContentLength == 0 {
		body = nil
	}

	if opts.Streaming {
		return runStream(ctx, command, args, env, body)
	}
	return runBatch(ctx, command, args, env, body)
}

// Write copies the response onto w. Streaming bodies are flushed chunk
// by chunk so delivery keeps pace with the program's own output rate.
func (resp *Response) Write(w http.ResponseWriter) error {
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}

	buf := make([]byte, 16<<10)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flush != nil {
				flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Handler serves HTTP requests by invoking one CGI program per
// request, the same one-shot mapping a classic cgi-bin does.
type Handler struct {
	Command string
	Args    []string
	Options Options
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := h.Options
	resp, err := Invoke(r.Context(), h.Command, h.Args, r, &opts)
	if err != nil {
		slog.Error("failed to start CGI", "command", h.Command, "error", err)
		http.Error(w, "failed to start CGI: "+err.Error(), http.StatusBadGateway)
		return
	}
	if err := resp.Write(w); err != nil {
		slog.Warn("error writing CGI response", "error", err)
	}
}
