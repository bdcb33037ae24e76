package cgibridge

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var streamingOpts = &Options{Streaming: true}

func TestInvokeStreamHeaders(t *testing.T) {
	script := writeScript(t, "stream.sh",
		`printf 'Content-Type: text/plain\nStatus: 201\n\nchunk-one'; sleep 0.1; printf 'chunk-two'`)
	r := httptest.NewRequest("GET", "http://example.com/", nil)

	resp, err := Invoke(context.Background(), script, nil, r, streamingOpts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Content-Length"), "streamed length is unknown up front")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "chunk-onechunk-two", string(body))
}

func TestInvokeStreamPassthrough(t *testing.T) {
	script := writeScript(t, "raw.sh", `printf 'no headers here'`)
	r := httptest.NewRequest("GET", "http://example.com/", nil)

	resp, err := Invoke(context.Background(), script, nil, r, streamingOpts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, defaultContentType, resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "no headers here", string(body))
}

func TestInvokeStreamLookaheadCapExceeded(t *testing.T) {
	// 4000 header-looking lines with no terminating blank line blow
	// past the lookahead window; the output must come through raw.
	script := writeScript(t, "cap.sh", `
i=0
while [ $i -lt 4000 ]; do
	printf 'x: y\n'
	i=$((i+1))
done
printf 'end'`)
	r := httptest.NewRequest("GET", "http://example.com/", nil)

	resp, err := Invoke(context.Background(), script, nil, r, streamingOpts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, defaultContentType, resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, body, 4000*len("x: y\n")+len("end"))
	assert.True(t, strings.HasPrefix(string(body), "x: y\n"))
	assert.True(t, strings.HasSuffix(string(body), "end"))
}

func TestInvokeStreamCancellation(t *testing.T) {
	script := writeScript(t, "endless.sh",
		`printf 'Content-Type: text/plain\n\n'
while true; do
	printf 'tick'
	sleep 0.05
done`)
	r := httptest.NewRequest("GET", "http://example.com/", nil)

	resp, err := Invoke(context.Background(), script, nil, r, streamingOpts)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	assert.Equal(t, "tick", string(buf))

	require.NoError(t, resp.Body.Close())

	// the underlying pipe is released, nothing more can be pulled
	_, err = resp.Body.Read(buf)
	assert.Error(t, err)
}

func TestInvokeStreamBodyAcrossChunkBoundary(t *testing.T) {
	// Terminator split across writes: headers in one write, the blank
	// line and body trickling in afterwards.
	script := writeScript(t, "split.sh",
		`printf 'Content-Type: text/plain'; sleep 0.05; printf '\r\n\r\n'; sleep 0.05; printf 'late body'`)
	r := httptest.NewRequest("GET", "http://example.com/", nil)

	resp, err := Invoke(context.Background(), script, nil, r, streamingOpts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "late body", string(body))
}

func TestInvokeStreamNonzeroExitIgnored(t *testing.T) {
	script := writeScript(t, "exit5.sh", `printf 'Content-Type: text/plain\n\npartial'; exit 5`)
	r := httptest.NewRequest("GET", "http://example.com/", nil)

	resp, err := Invoke(context.Background(), script, nil, r, streamingOpts)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "partial", string(body))
	assert.Empty(t, resp.Header.Get(exitCodeHeader), "exit status cannot amend a streamed response")
}
