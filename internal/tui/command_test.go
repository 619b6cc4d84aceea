package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		want Command
	}{
		{"", Command{}},
		{"  sync  ", Command{Name: "sync", Args: []string{}}},
		{"Q", Command{Name: "quit", Args: []string{}}},
		{"o general", Command{Name: "open", Args: []string{"general"}}},
		{"offline   on", Command{Name: "offline", Args: []string{"on"}}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseCommand(tc.in), "input %q", tc.in)
	}
}

func TestCommandArgs(t *testing.T) {
	c := ParseCommand("login abc def")
	assert.Equal(t, "abc", c.Arg(0))
	assert.Equal(t, "", c.Arg(5))
	assert.Equal(t, "abc def", c.Rest(0))
	assert.Equal(t, "", c.Rest(2))
}
