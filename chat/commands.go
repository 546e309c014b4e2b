package chat

import (
	"strings"
)

// Prefix starts every bot command.
const Prefix = "!"

// Command is a parsed chat command.
type Command struct {
	Name string
	Args []string
}

var known = map[string]bool{"trend": true, "link": true, "unlink": true}

// ParseCommand extracts a known command from a chat message. Unknown
// commands and ordinary messages return ok=false.
func ParseCommand(msg string) (Command, bool) {
	msg = strings.TrimSpace(msg)
	if !strings.HasPrefix(msg, Prefix) {
		return Command{}, false
	}
	fields := strings.Fields(msg[len(Prefix):])
	if len(fields) == 0 {
		return Command{}, false
	}
	name := strings.ToLower(fields[0])
	if !known[name] {
		return Command{}, false
	}
	return Command{Name: name, Args: fields[1:]}, true
}
