package formula

import "testing"

func TestLexerTokens(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []Token
	}{
		{
			name:  "simple sum",
			input: "1 + 2",
			want: []Token{
				{Type: TokenNumber, Value: "1"},
				{Type: TokenPlus, Value: "+"},
				{Type: TokenNumber, Value: "2"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "decimal and exponent",
			input: "3.14e-2",
			want: []Token{
				{Type: TokenNumber, Value: "3.14e-2"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "dangling exponent marker",
			input: "2e",
			want: []Token{
				{Type: TokenNumber, Value: "2"},
				{Type: TokenIdent, Value: "e"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "identifier and parens",
			input: "(pi*r)",
			want: []Token{
				{Type: TokenLParen, Value: "("},
				{Type: TokenIdent, Value: "pi"},
				{Type: TokenStar, Value: "*"},
				{Type: TokenIdent, Value: "r"},
				{Type: TokenRParen, Value: ")"},
				{Type: TokenEOF},
			},
		},
		{
			name:  "leading underscore is invalid",
			input: "_a",
			want: []Token{
				{Type: TokenInvalid, Value: "_"},
				{Type: TokenIdent, Value: "a"},
				{Type: TokenEOF},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			for i, want := range tc.want {
				got := l.NextToken()
				if got != want {
					t.Fatalf("token %d: got %+v, want %+v", i, got, want)
				}
			}
			if eof := l.NextToken(); eof.Type != TokenEOF {
				t.Fatalf("expected EOF to persist, got %+v", eof)
			}
		})
	}
}
