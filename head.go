package cgibridge

import (
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var statusLinePattern = regexp.MustCompile(`^HTTP/\d+\.\d+\s+(\d{3})`)

// parseHead turns the bytes of a CGI header block into an http.Header
// and a response status. Scripts can set the status either with a
// leading HTTP status line or a Status pseudo-header; the latter never
// surfaces as an output header and a later numeric Status line wins.
// Duplicate header names are combined into one comma-joined value,
// lines without a colon are skipped. The status defaults to 200.
func parseHead(head []byte) (int, http.Header) {
	status := 0
	header := make(http.Header)

	text := strings.ReplaceAll(string(head), "\r\n", "\n")
	first := true
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if first {
			first = false
			if m := statusLinePattern.FindStringSubmatch(line); m != nil {
				status, _ = strconv.Atoi(m[1])
				continue
			}
		}

		name, value, found := strings.Cut(line, ":")
		if !found {
			slog.Debug("skipping malformed CGI header line", "line", line)
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if strings.EqualFold(name, "Status") {
			if len(value) >= 3 {
				if code, err := strconv.Atoi(value[:3]); err == nil {
					status = code
				}
			}
			continue
		}

		if prev := header.Get(name); prev != "" {
			header.Set(name, prev+", "+value)
		} else {
			header.Set(name, value)
		}
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, header
}

var hopByHopHeaders = []string{"Connection", "Transfer-Encoding"}

// forwardHeader copies parsed CGI headers into the outgoing set,
// dropping hop-by-hop fields: response framing belongs to this bridge,
// not to the child program.
func forwardHeader(parsed http.Header) http.Header {
	header := make(http.Header, len(parsed))
	for k, vv := range parsed {
		header[k] = vv
	}
	for _, k := range hopByHopHeaders {
		header.Del(k)
	}
	return header
}
