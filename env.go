package cgibridge

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// BuildEnv derives the CGI/1.1 environment for one request. Every
// variable RFC 3875 section 4.1 names is present in the result, with
// an empty value when nothing can be derived for it. Entries from
// opts.Env come in first and are overwritten by computed values, so
// the standard variables stay trustworthy; variables the builder has
// no source for (AUTH_TYPE, REMOTE_USER, REMOTE_IDENT, and the
// path/script fields when their option is unset) keep a caller-given
// value.
//
// BuildEnv performs no I/O and is deterministic for identical inputs.
func BuildEnv(r *http.Request, opts *Options) map[string]string {
	if opts == nil {
		opts = &Options{}
	}

	env := make(map[string]string, len(opts.Env)+len(r.Header)+20)
	for k, v := range opts.Env {
		env[k] = v
	}

	scheme := opts.NetworkProtocol
	if scheme == "" {
		scheme = r.URL.Scheme
	}

	serverName := r.Host
	if serverName == "" {
		serverName = r.URL.Host
	}
	hostPort := ""
	if host, port, err := net.SplitHostPort(serverName); err == nil {
		serverName, hostPort = host, port
	}
	serverPort := opts.ServerPort
	if serverPort == "" {
		serverPort = hostPort
	}
	if serverPort == "" {
		serverPort = defaultPort(scheme)
	}

	software := opts.ServerSoftware
	if software == "" {
		software = defaultServerSoftware
	}
	protocol := opts.ServerProtocol
	if protocol == "" {
		protocol = "HTTP/1.1"
	}

	remoteAddr := opts.RemoteAddr
	if remoteAddr == "" && r.RemoteAddr != "" {
		remoteAddr = r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}
	}
	remoteHost := opts.RemoteHost
	if remoteHost == "" {
		remoteHost = remoteAddr
	}

	requestURI := r.URL.Path
	if r.URL.RawQuery != "" {
		requestURI += "?" + r.URL.RawQuery
	}

	contentLength := ""
	if r.ContentLength > 0 {
		contentLength = strconv.FormatInt(r.ContentLength, 10)
	}

	setDefault(env, "AUTH_TYPE", "")
	setDefault(env, "REMOTE_USER", "")
	setDefault(env, "REMOTE_IDENT", "")

	env["GATEWAY_INTERFACE"] = "CGI/1.1"
	env["REQUEST_METHOD"] = r.Method
	env["QUERY_STRING"] = r.URL.RawQuery
	env["REQUEST_URI"] = requestURI
	env["SERVER_NAME"] = serverName
	env["SERVER_PORT"] = serverPort
	env["SERVER_PROTOCOL"] = protocol
	env["SERVER_SOFTWARE"] = software
	env["CONTENT_TYPE"] = r.Header.Get("Content-Type")
	env["CONTENT_LENGTH"] = contentLength
	env["REMOTE_ADDR"] = remoteAddr
	env["REMOTE_HOST"] = remoteHost

	setOrDefault(env, "SCRIPT_NAME", opts.ScriptName)
	setOrDefault(env, "PATH_INFO", opts.PathInfo)
	setOrDefault(env, "PATH_TRANSLATED", opts.PathTranslated)

	for name, values := range r.Header {
		switch name {
		case "Content-Type", "Content-Length":
			// mapped to the unprefixed standard names above
			continue
		case "Proxy":
			// httpoxy
			continue
		}
		sep := ", "
		if name == "Cookie" {
			sep = "; "
		}
		env["HTTP_"+strings.Map(upperCaseAndUnderscore, name)] = strings.Join(values, sep)
	}

	return env
}

func defaultPort(scheme string) string {
	switch scheme {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

func setDefault(env map[string]string, key, val string) {
	if _, ok := env[key]; !ok {
		env[key] = val
	}
}

// setOrDefault writes val when non-empty and otherwise only makes sure
// the key exists, leaving any caller-supplied value in place.
func setOrDefault(env map[string]string, key, val string) {
	if val != "" {
		env[key] = val
		return
	}
	setDefault(env, key, "")
}

func upperCaseAndUnderscore(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return r - ('a' - 'A')
	case r == '-':
		return '_'
	case r == '=':
		return '_'
	}
	return r
}
