package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.remember("sync")
	p.remember("sync")
	p.remember("open general")
	p.Activate(PromptCommand)

	assert.Equal(t, "open general", p.step(-1))
	assert.Equal(t, "sync", p.step(-1))
	assert.Equal(t, "sync", p.step(-1), "stops at oldest")
	assert.Equal(t, "open general", p.step(1))
	assert.Equal(t, "", p.step(1))
	assert.Equal(t, "", p.step(1))
}

func TestPromptHistoryBounded(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	for i := range historySize + 10 {
		p.remember(string(rune('a' + i%26)) + string(rune('0'+i/26)))
	}
	assert.Len(t, p.history, historySize)
}
