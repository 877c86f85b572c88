//go:build linux
// +build linux

package node

import "strings"

// CommandPrefix marks a line as a command for this connection rather than a
// message to broadcast. Command lines are never fanned out.
const CommandPrefix = "/"

func isCommand(line string) bool {
	return strings.HasPrefix(line, CommandPrefix)
}

// parseAndApplyCommand executes a command line on behalf of its connection
// and returns the reply to send back to the issuer, already terminated.
// Only the issuer ever sees the reply.
func parseAndApplyCommand(c *Conn, line string) string {
	fields := strings.Fields(strings.TrimPrefix(line, CommandPrefix))
	if len(fields) == 0 {
		return systemLine("unknown command")
	}

	switch strings.ToLower(fields[0]) {
	case "nick":
		if len(fields) != 2 || !ValidNickname(fields[1]) {
			return systemLine("usage: /nick <name>")
		}
		c.SetNickname(fields[1])
		return systemLine("you are now known as " + fields[1])
	default:
		return systemLine("unknown command: " + fields[0])
	}
}

// formatMessage renders a broadcast line as "<nickname>: <line>\n".
func formatMessage(nickname, line string) []byte {
	return []byte(nickname + ": " + line + "\n")
}

// systemNotice renders a server-originated broadcast line.
func systemNotice(text string) []byte {
	return []byte(systemLine(text))
}

func systemLine(text string) string {
	return "* " + text + "\n"
}
