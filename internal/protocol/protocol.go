// Package protocol implements the line-framed text codec: newline-terminated
// frames whose head token (up to the first '|') names the command. REGISTER
// and LOGIN carry whitespace-separated arguments; every other command uses
// '|'-separated arguments. List responses separate records with '|' and
// fields within a record with ';'.
package protocol

import "strings"

// MaxFrameSize is the largest accepted request frame, newline included.
const MaxFrameSize = 4096

// TimeLayout renders bid timestamps on the wire.
const TimeLayout = "2006-01-02 15:04:05"

// Request is a parsed client frame.
type Request struct {
	Command string
	Args    []string
}

// spaceDelimited lists the commands whose argument blob is split on
// whitespace instead of '|'.
var spaceDelimited = map[string]bool{
	"REGISTER": true,
	"LOGIN":    true,
}

// Parse splits one frame into command and arguments. The frame may carry a
// trailing newline and carriage return. An absent argument blob yields nil
// Args; "CMD|" yields one empty argument for space-insensitive commands.
func Parse(line string) Request {
	line = strings.TrimRight(line, "\r\n")

	cmd, rest, found := strings.Cut(line, "|")
	if !found {
		return Request{Command: cmd}
	}

	if spaceDelimited[cmd] {
		return Request{Command: cmd, Args: strings.Fields(rest)}
	}

	if rest == "" {
		return Request{Command: cmd}
	}
	return Request{Command: cmd, Args: strings.Split(rest, "|")}
}

// Frame joins parts with '|' and terminates the frame.
func Frame(parts ...string) string {
	return strings.Join(parts, "|") + "\n"
}

// Fail builds the typed failure frame for a command.
func Fail(cmd, reason string) string {
	return cmd + "_FAIL|" + reason + "\n"
}

// Error builds the transport-level error frame.
func Error(reason string) string {
	return "ERROR|" + reason + "\n"
}

// List builds a list-bearing response: head, then one '|'-joined record per
// entry. An empty list renders as "HEAD|".
func List(head string, recs []string) string {
	return head + "|" + strings.Join(recs, "|") + "\n"
}

// Rec joins record fields with ';'.
func Rec(fields ...string) string {
	return strings.Join(fields, ";")
}
