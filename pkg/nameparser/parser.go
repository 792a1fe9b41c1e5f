// Package nameparser splits raw team names into club, age, gender and squad.
//
// Parsing is a pure function of the input and the injected vocabulary: the
// same raw name always yields the same ParsedName, and malformed input yields
// a partially filled result (Partial set) instead of an error.
package nameparser

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Ramsey-B/thistle/pkg/normalizers"
	"github.com/Ramsey-B/thistle/pkg/vocab"
)

// Options control age conversion.
type Options struct {
	// SeasonYear is the year a season ends in; U14 in the 2026 season is 2012.
	SeasonYear int
	// MinBirthYear and MaxBirthYear bound bare 2-digit tokens read as birth
	// years. Zero values derive from SeasonYear.
	MinBirthYear int
	MaxBirthYear int
}

// DefaultOptions derives the season from a clock reading. Seasons roll over
// on August 1st.
func DefaultOptions(now time.Time) Options {
	season := now.Year()
	if now.Month() >= time.August {
		season++
	}
	return Options{SeasonYear: season}
}

// SquadKind classifies one squad token.
type SquadKind string

const (
	SquadColor      SquadKind = "color"
	SquadProgram    SquadKind = "program"
	SquadDirection  SquadKind = "direction"
	SquadRoman      SquadKind = "roman"
	SquadOrdinal    SquadKind = "ordinal"
	SquadLocation   SquadKind = "location"
	SquadState      SquadKind = "state"
	SquadDesignator SquadKind = "designator"
	SquadVerbatim   SquadKind = "verbatim"
)

// SquadToken is a classified residual token. Value is the display form,
// Canonical the vocabulary key (program family, color, ...).
type SquadToken struct {
	Kind      SquadKind
	Value     string
	Canonical string
}

// ParsedName is the structured reading of a raw team name.
type ParsedName struct {
	Raw              string
	Club             string
	Age              Age
	AgePattern       string
	Gender           Gender
	Squad            string
	SquadTokens      []SquadToken
	SecondaryNumbers []string
	Identity         string
	// Partial is set when the club or the age could not be determined.
	Partial bool
}

// SameSquad compares squad identifiers case-insensitively. Two empty squads
// are equal.
func (n ParsedName) SameSquad(other ParsedName) bool {
	return strings.EqualFold(n.Squad, other.Squad)
}

// Parser holds the vocabulary and the ordered age pattern list.
type Parser struct {
	vocab    *vocab.Vocabulary
	opts     Options
	patterns []agePattern
}

// New creates a parser. A nil vocabulary uses the defaults.
func New(v *vocab.Vocabulary, opts Options) *Parser {
	if v == nil {
		v = vocab.Default()
	}
	if opts.SeasonYear > 0 {
		if opts.MinBirthYear == 0 {
			opts.MinBirthYear = opts.SeasonYear - 25
		}
		if opts.MaxBirthYear == 0 {
			opts.MaxBirthYear = opts.SeasonYear - 3
		}
	}
	return &Parser{
		vocab:    v,
		opts:     opts,
		patterns: defaultPatterns(),
	}
}

// Vocabulary returns the vocabulary the parser was built with.
func (p *Parser) Vocabulary() *vocab.Vocabulary {
	return p.vocab
}

// Parse reads raw. clubHint, when non-empty, is trusted as the club name and
// its tokens are removed before squad extraction.
func (p *Parser) Parse(raw, clubHint string) ParsedName {
	out := ParsedName{Raw: raw}
	tokens := Tokenize(raw)
	consumed := make(map[int]bool)

	ageIdx := -1
scan:
	for _, pat := range p.patterns {
		for i, tok := range tokens {
			if age, gender, ok := pat.apply(p, tok.Lower); ok {
				out.Age = age
				out.AgePattern = pat.name
				out.Gender = gender
				ageIdx = i
				consumed[i] = true
				break scan
			}
		}
	}

	for i, tok := range tokens {
		if consumed[i] {
			continue
		}
		if g, ok := p.vocab.Gender(tok.Lower); ok {
			if out.Gender == GenderUnknown {
				out.Gender = Gender(g)
			}
			consumed[i] = true
		}
	}

	var squadIdx []int
	out.Club, squadIdx = p.splitClub(tokens, consumed, ageIdx, clubHint)
	out.SquadTokens = p.classifySquad(tokens, squadIdx)

	values := make([]string, 0, len(out.SquadTokens))
	for _, st := range out.SquadTokens {
		values = append(values, st.Value)
	}
	out.Squad = strings.Join(values, " ")

	if ageIdx >= 0 {
		for i := ageIdx + 1; i < len(tokens); i++ {
			if !consumed[i] && tokens[i].IsDigits() {
				out.SecondaryNumbers = append(out.SecondaryNumbers, tokens[i].Raw)
			}
		}
	}

	out.Partial = ageIdx < 0 || out.Club == ""
	out.Identity = strings.Join([]string{
		normalizers.NormalizeClubName(out.Club),
		out.Age.Key(),
		out.Gender.Initial(),
		strings.ToLower(out.Squad),
	}, "|")

	return out
}

// splitClub returns the club name and the token indexes left for the squad.
func (p *Parser) splitClub(tokens []Token, consumed map[int]bool, ageIdx int, clubHint string) (string, []int) {
	remaining := make([]int, 0, len(tokens))
	for i := range tokens {
		if !consumed[i] {
			remaining = append(remaining, i)
		}
	}

	if hint := normalizers.CollapseWhitespace(clubHint); hint != "" {
		return hint, p.dropHint(tokens, remaining, Tokenize(hint))
	}

	prefixEnd := len(tokens)
	if ageIdx >= 0 {
		prefixEnd = ageIdx
	}

	var prefix, rest []int
	for _, i := range remaining {
		if i < prefixEnd {
			prefix = append(prefix, i)
		} else {
			rest = append(rest, i)
		}
	}

	// Peel squad vocabulary off the end of the club, keeping at least one word.
	cut := len(prefix)
	for cut > 1 {
		if p.isSquadWord(tokens[prefix[cut-1]]) {
			cut--
			continue
		}
		if cut > 2 {
			pair := []string{tokens[prefix[cut-2]].Lower, tokens[prefix[cut-1]].Lower}
			if _, width, ok := p.vocab.Program(pair, 0); ok && width == 2 {
				cut -= 2
				continue
			}
		}
		break
	}

	club := make([]string, 0, cut)
	for _, i := range prefix[:cut] {
		club = append(club, tokens[i].Raw)
	}

	squad := append(append([]int{}, prefix[cut:]...), rest...)
	return strings.Join(club, " "), squad
}

func (p *Parser) dropHint(tokens []Token, remaining []int, hint []Token) []int {
	if len(hint) > 0 {
		for start := 0; start+len(hint) <= len(remaining); start++ {
			match := true
			for j := range hint {
				if tokens[remaining[start+j]].Lower != hint[j].Lower {
					match = false
					break
				}
			}
			if match {
				out := append([]int{}, remaining[:start]...)
				return append(out, remaining[start+len(hint):]...)
			}
		}
	}

	// No contiguous hit: drop the leading run of hint words.
	inHint := make(map[string]bool, len(hint))
	for _, h := range hint {
		inHint[h.Lower] = true
	}
	start := 0
	for start < len(remaining) && inHint[tokens[remaining[start]].Lower] {
		start++
	}
	return remaining[start:]
}

// isSquadWord reports whether a token belongs to a squad vocabulary class.
func (p *Parser) isSquadWord(tok Token) bool {
	if p.vocab.IsClubSuffix(tok.Lower) {
		return false
	}
	if _, ok := p.vocab.Color(tok.Lower); ok {
		return true
	}
	if _, ok := p.vocab.Direction(tok.Lower); ok {
		return true
	}
	if _, _, ok := p.vocab.Program([]string{tok.Lower}, 0); ok {
		return true
	}
	if _, ok := p.vocab.Roman(tok.Lower); ok {
		return true
	}
	if _, ok := p.vocab.Ordinal(tok.Lower); ok {
		return true
	}
	if p.vocab.IsLocationCode(tok.Lower) || p.isStateCode(tok) {
		return true
	}
	return isDesignator(tok)
}

func (p *Parser) isStateCode(tok Token) bool {
	return len(tok.Raw) == 2 && tok.IsUpper() && p.vocab.IsStateCode(tok.Lower) && !p.vocab.IsClubSuffix(tok.Lower)
}

// isDesignator matches single letters and short numbers ("B", "2").
func isDesignator(tok Token) bool {
	if len([]rune(tok.Raw)) == 1 {
		return true
	}
	return tok.IsDigits() && len(tok.Raw) <= 2
}

func (p *Parser) classifySquad(tokens []Token, idx []int) []SquadToken {
	words := make([]Token, 0, len(idx))
	for _, i := range idx {
		if p.vocab.IsClubSuffix(tokens[i].Lower) {
			continue
		}
		words = append(words, tokens[i])
	}

	title := cases.Title(language.English)
	lower := lowers(words)

	out := make([]SquadToken, 0, len(words))
	for i := 0; i < len(words); i++ {
		tok := words[i]

		if family, width, ok := p.vocab.Program(lower, i); ok {
			label := family
			if info, found := p.vocab.ProgramInfo(family); found {
				label = info.Label
			}
			out = append(out, SquadToken{Kind: SquadProgram, Value: label, Canonical: family})
			i += width - 1
			continue
		}
		if c, ok := p.vocab.Color(tok.Lower); ok {
			out = append(out, SquadToken{Kind: SquadColor, Value: title.String(c), Canonical: c})
			continue
		}
		if d, ok := p.vocab.Direction(tok.Lower); ok {
			out = append(out, SquadToken{Kind: SquadDirection, Value: title.String(d), Canonical: d})
			continue
		}
		if n, ok := p.vocab.Roman(tok.Lower); ok {
			out = append(out, SquadToken{Kind: SquadRoman, Value: strings.ToUpper(tok.Raw), Canonical: strconv.Itoa(n)})
			continue
		}
		if n, ok := p.vocab.Ordinal(tok.Lower); ok {
			out = append(out, SquadToken{Kind: SquadOrdinal, Value: tok.Lower, Canonical: strconv.Itoa(n)})
			continue
		}
		if p.vocab.IsLocationCode(tok.Lower) {
			out = append(out, SquadToken{Kind: SquadLocation, Value: strings.ToUpper(tok.Raw), Canonical: tok.Lower})
			continue
		}
		if p.isStateCode(tok) {
			out = append(out, SquadToken{Kind: SquadState, Value: tok.Raw, Canonical: tok.Lower})
			continue
		}
		if isDesignator(tok) {
			out = append(out, SquadToken{Kind: SquadDesignator, Value: strings.ToUpper(tok.Raw), Canonical: tok.Lower})
			continue
		}
		out = append(out, SquadToken{Kind: SquadVerbatim, Value: tok.Raw, Canonical: tok.Lower})
	}

	return out
}
