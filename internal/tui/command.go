package tui

import "strings"

// Command is a parsed ":" command line.
type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// Rest joins the arguments from i on, for free text.
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// aliases map short forms to command names.
var aliases = map[string]string{
	"q":  "quit",
	"h":  "help",
	"o":  "open",
	"n":  "notifications",
	"ob": "outbox",
}

// ParseCommand parses input without the leading ':'.
func ParseCommand(input string) Command {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}
	}
	name := strings.ToLower(fields[0])
	if full, ok := aliases[name]; ok {
		name = full
	}
	return Command{Name: name, Args: fields[1:]}
}
