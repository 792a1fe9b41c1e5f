package nameparser

import (
	"strings"
	"unicode"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/thistle/pkg/normalizers"
)

// Token is one word of a raw team name.
type Token struct {
	Raw   string // as written, accents folded
	Lower string
}

// IsDigits reports whether the token is made only of ASCII digits.
func (t Token) IsDigits() bool {
	if t.Raw == "" {
		return false
	}
	for _, r := range t.Raw {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsUpper reports whether every letter in the token is upper case.
func (t Token) IsUpper() bool {
	hasLetter := false
	for _, r := range t.Raw {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// Tokenize splits a raw name on whitespace and separators. Dots and
// apostrophes are dropped ("F.C." -> "FC") and '/' stays inside a token so
// year ranges like 15/16B survive.
func Tokenize(raw string) []Token {
	folded := normalizers.FoldAccents(raw)

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/':
			b.WriteRune(r)
		case r == '.' || r == '\'' || r == '’':
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "/")
		if f == "" {
			continue
		}
		tokens = append(tokens, Token{Raw: f, Lower: strings.ToLower(f)})
	}
	return tokens
}

func lowers(tokens []Token) []string {
	return ectolinq.Map(tokens, func(t Token) string { return t.Lower })
}
