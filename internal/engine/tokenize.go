package engine

import (
	"strings"
)

// parsedCommand is the output of tokenization: a command name and its
// arguments in order. An empty name means the input was blank.
type parsedCommand struct {
	name string
	args []string
}

// nameMetachars are rejected in command names. They are still legal inside
// arguments, where they stay literal text: the grammar has no composition
// operators, no redirection, and no substitution.
const nameMetachars = ";|&<>`$" + `/\`

// tokenize splits a raw input line on whitespace, honoring single and
// double quotes so a quoted substring (spaces included) becomes one
// argument. Backslash escapes the next character outside quotes.
func tokenize(raw string) (parsedCommand, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return parsedCommand{}, nil
	}

	var fields []string
	var current strings.Builder
	var inQuote rune
	escaped := false
	sawToken := false

	for _, ch := range line {
		if escaped {
			current.WriteRune(ch)
			escaped = false
			continue
		}

		if ch == '\\' && inQuote != '\'' {
			escaped = true
			continue
		}

		if inQuote != 0 {
			if ch == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(ch)
			}
			continue
		}

		if ch == '"' || ch == '\'' {
			inQuote = ch
			sawToken = true
			continue
		}

		if ch == ' ' || ch == '\t' {
			if current.Len() > 0 || sawToken {
				fields = append(fields, current.String())
				current.Reset()
				sawToken = false
			}
			continue
		}

		current.WriteRune(ch)
		sawToken = true
	}

	if escaped {
		return parsedCommand{}, errParse("trailing backslash in command line")
	}
	if inQuote != 0 {
		return parsedCommand{}, errParse("unterminated quote in command line")
	}
	if current.Len() > 0 || sawToken {
		fields = append(fields, current.String())
	}
	if len(fields) == 0 {
		return parsedCommand{}, nil
	}

	name := fields[0]
	if strings.ContainsAny(name, nameMetachars) {
		return parsedCommand{}, errParse("invalid command name: " + name)
	}

	return parsedCommand{name: name, args: fields[1:]}, nil
}
