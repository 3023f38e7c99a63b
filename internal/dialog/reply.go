package dialog

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// maxReplyLine caps one accumulated reply line. Anything larger is a
// misbehaving or hostile peer.
const maxReplyLine = 8192

// reply is one complete SMTP reply, possibly multi-line.
type reply struct {
	code  int
	text  string   // text of the terminal line, without code and separator
	lines []string // every line, verbatim, in arrival order
}

// full returns the whole reply as one string for classification and
// transcripts. Continuation lines carry provider detail (Gmail splits its
// explanations over several 550- lines) that the terminal line alone loses.
func (r reply) full() string {
	return strings.Join(r.lines, " ")
}

// containsCapability scans continuation lines case-insensitively for an
// EHLO keyword advertisement.
func (r reply) containsCapability(keyword string) bool {
	for _, line := range r.lines {
		if len(line) < 4 {
			continue
		}
		rest := strings.ToUpper(strings.TrimSpace(line[4:]))
		if rest == keyword || strings.HasPrefix(rest, keyword+" ") {
			return true
		}
	}
	return false
}

// replyReader assembles CRLF-framed reply lines from a byte stream.
// SMTP replies may contain interior bare LFs, so splitting on '\n' alone
// would tear lines apart; a line ends only at CRLF.
type replyReader struct {
	r *bufio.Reader
}

func newReplyReader(r io.Reader) *replyReader {
	return &replyReader{r: bufio.NewReader(r)}
}

var errReplyTooLong = errors.New("smtp reply line exceeds limit")

// readLine returns the next complete line without its CRLF terminator.
func (rr *replyReader) readLine() (string, error) {
	var buf strings.Builder
	for {
		chunk, err := rr.r.ReadString('\n')
		buf.WriteString(chunk)
		if err != nil {
			return "", err
		}
		if strings.HasSuffix(buf.String(), "\r\n") {
			line := buf.String()
			return line[:len(line)-2], nil
		}
		if buf.Len() > maxReplyLine {
			return "", errReplyTooLong
		}
	}
}

// readReply reads one full reply: zero or more "NNN-" continuation lines
// bracketed by a single "NNN " (or bare "NNN") terminator.
func (rr *replyReader) readReply() (reply, error) {
	var out reply
	for {
		line, err := rr.readLine()
		if err != nil {
			return reply{}, err
		}
		if len(line) < 3 {
			return reply{}, errors.New("smtp reply line too short: " + strconv.Quote(line))
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil {
			return reply{}, errors.New("smtp reply has no status code: " + strconv.Quote(line))
		}
		out.lines = append(out.lines, line)

		if len(line) > 3 && line[3] == '-' {
			continue
		}
		out.code = code
		if len(line) > 4 {
			out.text = line[4:]
		}
		return out, nil
	}
}
