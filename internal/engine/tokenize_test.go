package engine

import (
	"reflect"
	"testing"
)

func TestTokenizeQuoting(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  parsedCommand
		fails bool
	}{
		{
			name: "plain words",
			raw:  "list foo bar",
			want: parsedCommand{name: "list", args: []string{"foo", "bar"}},
		},
		{
			name: "double quoted space stays one argument",
			raw:  `list "my dir"`,
			want: parsedCommand{name: "list", args: []string{"my dir"}},
		},
		{
			name: "single quotes",
			raw:  "read-file 'notes 2024.txt'",
			want: parsedCommand{name: "read-file", args: []string{"notes 2024.txt"}},
		},
		{
			name: "empty quoted argument survives",
			raw:  `list ""`,
			want: parsedCommand{name: "list", args: []string{""}},
		},
		{
			name: "escaped space outside quotes",
			raw:  `read-file my\ file`,
			want: parsedCommand{name: "read-file", args: []string{"my file"}},
		},
		{
			name: "metacharacters are literal inside arguments",
			raw:  `read-file "a;b|c&d>e"`,
			want: parsedCommand{name: "read-file", args: []string{"a;b|c&d>e"}},
		},
		{
			name: "surrounding whitespace ignored",
			raw:  "   pwd   ",
			want: parsedCommand{name: "pwd"},
		},
		{
			name:  "unterminated double quote",
			raw:   `list "my dir`,
			fails: true,
		},
		{
			name:  "unterminated single quote",
			raw:   "list 'oops",
			fails: true,
		},
		{
			name:  "trailing backslash",
			raw:   `list foo\`,
			fails: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tokenize(tt.raw)
			if tt.fails {
				if err == nil {
					t.Fatalf("expected parse error, got %+v", got)
				}
				ee, ok := AsEngineError(err)
				if !ok || ee.Kind != KindUnknownCommand {
					t.Fatalf("parse failures must map to unknown_command, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("tokenize(%q): %v", tt.raw, err)
			}
			if got.name != tt.want.name {
				t.Fatalf("name = %q, want %q", got.name, tt.want.name)
			}
			if len(got.args) != 0 || len(tt.want.args) != 0 {
				if !reflect.DeepEqual(got.args, tt.want.args) {
					t.Fatalf("args = %#v, want %#v", got.args, tt.want.args)
				}
			}
		})
	}
}

func TestTokenizeBlankInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t \t"} {
		got, err := tokenize(raw)
		if err != nil {
			t.Fatalf("tokenize(%q): %v", raw, err)
		}
		if got.name != "" || len(got.args) != 0 {
			t.Fatalf("tokenize(%q) = %+v, want empty", raw, got)
		}
	}
}

func TestTokenizeRejectsMetacharacterNames(t *testing.T) {
	for _, raw := range []string{"bin/ls", `c:\tools`, "a;b", "x|y", "cmd&", "p>q", "q`r", "a$b"} {
		if _, err := tokenize(raw); err == nil {
			t.Fatalf("tokenize(%q) accepted a metacharacter command name", raw)
		}
	}
}
