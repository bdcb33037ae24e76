package cgibridge

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rfc3875Keys = []string{
	"AUTH_TYPE", "CONTENT_LENGTH", "CONTENT_TYPE", "GATEWAY_INTERFACE",
	"PATH_INFO", "PATH_TRANSLATED", "QUERY_STRING", "REMOTE_ADDR",
	"REMOTE_HOST", "REMOTE_IDENT", "REMOTE_USER", "REQUEST_METHOD",
	"SCRIPT_NAME", "SERVER_NAME", "SERVER_PORT", "SERVER_PROTOCOL",
	"SERVER_SOFTWARE",
}

func TestBuildEnvStandardKeysAlwaysPresent(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/p", nil)
	env := BuildEnv(r, nil)

	for _, key := range rfc3875Keys {
		assert.Contains(t, env, key, "missing standard variable %s", key)
	}
	assert.Contains(t, env, "REQUEST_URI")
}

func TestBuildEnvQueryString(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantURI string
	}{
		{"with query", "http://h/p?a=1&b=2", "a=1&b=2", "/p?a=1&b=2"},
		{"no query", "http://h/p", "", "/p"},
		{"bare question mark", "http://h/p?", "", "/p"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			env := BuildEnv(r, nil)
			assert.Equal(t, tt.want, env["QUERY_STRING"])
			assert.Equal(t, tt.wantURI, env["REQUEST_URI"])
		})
	}
}

func TestBuildEnvServerNameAndPort(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		opts     *Options
		wantName string
		wantPort string
	}{
		{"explicit port in host", "http://example.com:8443/", nil, "example.com", "8443"},
		{"https default port", "https://example.com/", nil, "example.com", "443"},
		{"http default port", "http://example.com/", nil, "example.com", "80"},
		{"options port wins", "http://example.com:8443/", &Options{ServerPort: "9999"}, "example.com", "9999"},
		{"protocol override", "http://example.com/", &Options{NetworkProtocol: "https"}, "example.com", "443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			env := BuildEnv(r, tt.opts)
			assert.Equal(t, tt.wantName, env["SERVER_NAME"])
			assert.Equal(t, tt.wantPort, env["SERVER_PORT"])
		})
	}
}

func TestBuildEnvHeaderForwarding(t *testing.T) {
	r := httptest.NewRequest("POST", "http://example.com/p", strings.NewReader("x=1"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Custom-Header", "a")
	r.Header.Add("X-Custom-Header", "b")
	r.Header.Add("Cookie", "k1=v1")
	r.Header.Add("Cookie", "k2=v2")
	r.Header.Set("Proxy", "evil")

	env := BuildEnv(r, nil)

	assert.Equal(t, "a, b", env["HTTP_X_CUSTOM_HEADER"])
	assert.Equal(t, "k1=v1; k2=v2", env["HTTP_COOKIE"])
	assert.Equal(t, "application/x-www-form-urlencoded", env["CONTENT_TYPE"])
	assert.Equal(t, "3", env["CONTENT_LENGTH"])
	assert.NotContains(t, env, "HTTP_CONTENT_TYPE")
	assert.NotContains(t, env, "HTTP_CONTENT_LENGTH")
	assert.NotContains(t, env, "HTTP_PROXY")
}

func TestBuildEnvPrecedence(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/p", nil)
	env := BuildEnv(r, &Options{Env: map[string]string{
		"REQUEST_METHOD": "HACK",
		"QUERY_STRING":   "injected",
		"AUTH_TYPE":      "Basic",
		"X_EXTRA":        "1",
	}})

	// computed standard variables always win over caller-supplied env
	assert.Equal(t, "GET", env["REQUEST_METHOD"])
	assert.Equal(t, "", env["QUERY_STRING"])
	// variables the builder has no source for keep the caller's value
	assert.Equal(t, "Basic", env["AUTH_TYPE"])
	assert.Equal(t, "1", env["X_EXTRA"])
}

func TestBuildEnvOptionsFields(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/cgi/extra/bits", nil)
	env := BuildEnv(r, &Options{
		ScriptName:     "/cgi",
		PathInfo:       "/extra/bits",
		PathTranslated: "/srv/extra/bits",
		RemoteAddr:     "203.0.113.9",
		RemoteHost:     "client.example",
		ServerSoftware: "test-sw",
		ServerProtocol: "HTTP/1.0",
	})

	assert.Equal(t, "/cgi", env["SCRIPT_NAME"])
	assert.Equal(t, "/extra/bits", env["PATH_INFO"])
	assert.Equal(t, "/srv/extra/bits", env["PATH_TRANSLATED"])
	assert.Equal(t, "203.0.113.9", env["REMOTE_ADDR"])
	assert.Equal(t, "client.example", env["REMOTE_HOST"])
	assert.Equal(t, "test-sw", env["SERVER_SOFTWARE"])
	assert.Equal(t, "HTTP/1.0", env["SERVER_PROTOCOL"])
}

func TestBuildEnvRemoteAddrFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/p", nil)
	// httptest sets RemoteAddr to 192.0.2.1:1234
	env := BuildEnv(r, nil)
	assert.Equal(t, "192.0.2.1", env["REMOTE_ADDR"])
	assert.Equal(t, "192.0.2.1", env["REMOTE_HOST"])
}

func TestBuildEnvIdempotent(t *testing.T) {
	r := httptest.NewRequest("GET", "http://example.com/p?a=1", nil)
	r.Header.Set("X-A", "1")
	opts := &Options{Env: map[string]string{"X_EXTRA": "1"}, PathInfo: "/pi"}

	first := BuildEnv(r, opts)
	second := BuildEnv(r, opts)
	require.Equal(t, first, second)
}
