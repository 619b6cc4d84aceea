package views

import (
	"strings"
	"unicode"

	"github.com/rivo/tview"
)

// clean prepares server text for a tview cell: control characters and
// codepoints tcell renders badly are dropped and tview tags are escaped.
func clean(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}

// sanitizeForTerminal drops control characters plus emoji modifiers,
// joiners and variation selectors, so combined emoji render as their
// base glyph. Newlines and tabs become spaces.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r), isProblematicRune(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
