package commands

import (
	"strings"
	"unicode"
)

const rootCommand = "gen"

// parseCommand splits "/gen@Bot add base \"Big Barn\" tek" into its
// arguments after the root command. ok is false for any other text.
func parseCommand(text string) (args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}
	fields := splitArgs(text[1:])
	if len(fields) == 0 {
		return nil, false
	}
	head, _, _ := strings.Cut(fields[0], "@")
	if !strings.EqualFold(head, rootCommand) {
		return nil, false
	}
	return fields[1:], true
}

// splitArgs splits on whitespace. Double or single quotes group words and
// are removed.
func splitArgs(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		has   bool
	)
	for _, r := range s {
		switch {
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '"' || r == '\'' || r == '“' || r == '”'):
			quote = r
			if r == '“' {
				quote = '”'
			}
			has = true
		case quote == 0 && unicode.IsSpace(r):
			if has {
				out = append(out, cur.String())
				cur.Reset()
				has = false
			}
		default:
			cur.WriteRune(r)
			has = true
		}
	}
	if has {
		out = append(out, cur.String())
	}
	return out
}
