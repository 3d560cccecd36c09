package moderation

import (
	_ "embed"
	"strings"
)

//go:embed censored/en.txt
var censoredEN string

// DefaultWords returns the built-in forbidden word list, one word per line,
// blank lines and #-comments skipped.
func DefaultWords() []string {
	var words []string
	for _, line := range strings.Split(censoredEN, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words
}
