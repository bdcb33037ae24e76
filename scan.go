package cgibridge

import "bytes"

// maxHeaderLookahead caps how many bytes of child output are buffered
// while searching for the header/body boundary in streaming mode.
// Output that has not produced a boundary within this window is
// forwarded raw.
const maxHeaderLookahead = 16 << 10

type scanOutcome int

const (
	// scanNeedMore means the buffer could still grow into a header
	// block; keep reading.
	scanNeedMore scanOutcome = iota
	// scanFound means the blank-line terminator was located.
	scanFound
	// scanNone means the buffer is not a CGI header block and never
	// will be; the output is forwarded raw.
	scanNone
)

// headScanner accumulates child output and looks for the blank-line
// terminator (CRLFCRLF or LFLF) ending a CGI header block. The cursor
// only moves forward over lines already judged, so scanning stays
// linear no matter how the output is chunked.
type headScanner struct {
	buf []byte
	pos int // start of the first unexamined line
}

func (s *headScanner) append(p []byte) {
	s.buf = append(s.buf, p...)
}

// scan resumes from the cursor. On scanFound, bodyStart is the offset
// of the first body byte, just past the terminator.
func (s *headScanner) scan() (bodyStart int, outcome scanOutcome) {
	for {
		nl := bytes.IndexByte(s.buf[s.pos:], '\n')
		if nl < 0 {
			return 0, scanNeedMore
		}
		lineEnd := s.pos + nl
		line := s.buf[s.pos:lineEnd]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		switch {
		case len(line) == 0:
			if s.pos == 0 {
				// a blank line before any header is no header block
				return 0, scanNone
			}
			return lineEnd + 1, scanFound
		case headerish(line, s.pos == 0):
			s.pos = lineEnd + 1
		default:
			return 0, scanNone
		}
	}
}

// headerish reports whether line can belong to a CGI header block. The
// first line may also be a full HTTP status line, which some scripts
// emit instead of a Status header.
func headerish(line []byte, first bool) bool {
	if first && bytes.HasPrefix(line, []byte("HTTP/")) {
		return true
	}
	return bytes.IndexByte(line, ':') >= 0
}

// splitHead locates the header/body boundary in a complete output
// buffer, as collected in batch mode where no further data will ever
// arrive. ok is false when the output has no detectable header block,
// in which case body is the whole buffer.
func splitHead(out []byte) (head, body []byte, ok bool) {
	s := headScanner{buf: out}
	bodyStart, outcome := s.scan()
	if outcome != scanFound {
		return nil, out, false
	}
	return out[:bodyStart], out[bodyStart:], true
}
