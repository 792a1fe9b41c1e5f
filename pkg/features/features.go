// Package features decomposes team names into structural facets and decides
// whether two names may ever refer to the same team.
//
// The veto is a precondition for every fuzzy score and merge confidence. A
// single differing facet (color, division, region, team number, coach ...)
// blocks the pair no matter how similar the strings are. A facet missing on
// either side never blocks.
package features

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/thistle/pkg/nameparser"
	"github.com/Ramsey-B/thistle/pkg/vocab"
)

// Facet names, in the order they are checked.
const (
	FacetColor            = "color"
	FacetDirection        = "direction"
	FacetProgram          = "program"
	FacetTeamNumber       = "team_number"
	FacetLocationCode     = "location_code"
	FacetSquadWords       = "squad_words"
	FacetAgeTokens        = "age_tokens"
	FacetSecondaryNumbers = "secondary_numbers"
	FacetStateCode        = "state_code"
)

// AgeToken is one age reading found in a name.
type AgeToken struct {
	Key    string // canonical birth year (or U## when no season is configured)
	Gender string // "b", "g" or ""
}

// Features are the structural facets of one name.
type Features struct {
	Color            string
	Direction        string
	Programs         []string
	TeamNumber       string
	LocationCodes    []string
	StateCode        string
	SquadWords       []string
	AgeTokens        []AgeToken
	SecondaryNumbers []string
}

// Veto describes the first facet that differs between two names.
type Veto struct {
	Facet string
	Left  string
	Right string
}

// Reason renders the veto for logs and review notes.
func (v Veto) Reason() string {
	return fmt.Sprintf("%s mismatch: %s vs %s", v.Facet, v.Left, v.Right)
}

// Extractor computes Features using the parser's tokenizer, age patterns and
// vocabulary.
type Extractor struct {
	parser *nameparser.Parser
	vocab  *vocab.Vocabulary
}

// NewExtractor creates an extractor sharing the parser's vocabulary.
func NewExtractor(parser *nameparser.Parser) *Extractor {
	return &Extractor{
		parser: parser,
		vocab:  parser.Vocabulary(),
	}
}

// Extract reads the facets of one raw name.
func (e *Extractor) Extract(name string) Features {
	var f Features
	tokens := nameparser.Tokenize(name)

	lower := ectolinq.Map(tokens, func(t nameparser.Token) string { return t.Lower })

	programs := make(map[string]struct{})
	locations := make(map[string]struct{})
	squadWords := make(map[string]struct{})
	ages := make(map[AgeToken]struct{})
	firstAge := -1

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if family, width, ok := e.vocab.Program(lower, i); ok {
			programs[family] = struct{}{}
			i += width - 1
			continue
		}
		if c, ok := e.vocab.Color(tok.Lower); ok {
			if f.Color == "" {
				f.Color = c
			}
			continue
		}
		if d, ok := e.vocab.Direction(tok.Lower); ok {
			if f.Direction == "" {
				f.Direction = d
			}
			continue
		}

		if tok.IsDigits() {
			if firstAge >= 0 {
				f.SecondaryNumbers = append(f.SecondaryNumbers, tok.Raw)
			}
		}

		if age, gender, ok := e.parser.MatchAge(tok.Lower); ok {
			ages[AgeToken{Key: age.Key(), Gender: gender.Initial()}] = struct{}{}
			if firstAge < 0 {
				firstAge = i
			}
			continue
		}
		if tok.IsDigits() {
			if len(tok.Raw) == 1 && f.TeamNumber == "" {
				f.TeamNumber = tok.Raw
			}
			continue
		}
		if n, ok := e.vocab.Roman(tok.Lower); ok {
			if f.TeamNumber == "" {
				f.TeamNumber = strconv.Itoa(n)
			}
			continue
		}
		if n, ok := e.vocab.Ordinal(tok.Lower); ok {
			if f.TeamNumber == "" {
				f.TeamNumber = strconv.Itoa(n)
			}
			continue
		}
		if e.vocab.IsLocationCode(tok.Lower) {
			locations[tok.Lower] = struct{}{}
			continue
		}
		if e.vocab.IsClubSuffix(tok.Lower) {
			continue
		}
		if len(tok.Raw) == 2 && tok.IsUpper() && e.vocab.IsStateCode(tok.Lower) {
			if f.StateCode == "" {
				f.StateCode = tok.Lower
			}
			continue
		}
		if _, ok := e.vocab.Gender(tok.Lower); ok {
			continue
		}

		if n := utf8.RuneCountInString(tok.Lower); n >= 4 || n == 1 {
			squadWords[tok.Lower] = struct{}{}
		}
	}

	f.Programs = sortedKeys(programs)
	f.LocationCodes = sortedKeys(locations)
	f.SquadWords = sortedKeys(squadWords)

	f.AgeTokens = make([]AgeToken, 0, len(ages))
	for a := range ages {
		f.AgeTokens = append(f.AgeTokens, a)
	}
	sort.Slice(f.AgeTokens, func(i, j int) bool {
		if f.AgeTokens[i].Key != f.AgeTokens[j].Key {
			return f.AgeTokens[i].Key < f.AgeTokens[j].Key
		}
		return f.AgeTokens[i].Gender < f.AgeTokens[j].Gender
	})

	return f
}

// ShouldSkip reports whether the pair is vetoed and why.
func (e *Extractor) ShouldSkip(a, b string) (bool, string) {
	if v := e.Check(a, b); v != nil {
		return true, v.Reason()
	}
	return false, ""
}

// Check returns the first differing facet between a and b, or nil.
func (e *Extractor) Check(a, b string) *Veto {
	return Compare(e.Extract(a), e.Extract(b))
}

// Compare applies the veto rules to two extracted feature sets.
func Compare(a, b Features) *Veto {
	if differ(a.Color, b.Color) {
		return &Veto{Facet: FacetColor, Left: a.Color, Right: b.Color}
	}
	if differ(a.Direction, b.Direction) {
		return &Veto{Facet: FacetDirection, Left: a.Direction, Right: b.Direction}
	}
	if setsDiffer(a.Programs, b.Programs) {
		return &Veto{Facet: FacetProgram, Left: strings.Join(a.Programs, ","), Right: strings.Join(b.Programs, ",")}
	}
	if differ(a.TeamNumber, b.TeamNumber) {
		return &Veto{Facet: FacetTeamNumber, Left: a.TeamNumber, Right: b.TeamNumber}
	}
	if setsDiffer(a.LocationCodes, b.LocationCodes) {
		return &Veto{Facet: FacetLocationCode, Left: strings.Join(a.LocationCodes, ","), Right: strings.Join(b.LocationCodes, ",")}
	}
	if setsDiffer(a.SquadWords, b.SquadWords) {
		return &Veto{Facet: FacetSquadWords, Left: strings.Join(a.SquadWords, ","), Right: strings.Join(b.SquadWords, ",")}
	}
	if agesDiffer(a.AgeTokens, b.AgeTokens) {
		return &Veto{Facet: FacetAgeTokens, Left: formatAges(a.AgeTokens), Right: formatAges(b.AgeTokens)}
	}
	if setsDiffer(a.SecondaryNumbers, b.SecondaryNumbers) {
		return &Veto{Facet: FacetSecondaryNumbers, Left: strings.Join(a.SecondaryNumbers, ","), Right: strings.Join(b.SecondaryNumbers, ",")}
	}
	if differ(a.StateCode, b.StateCode) {
		return &Veto{Facet: FacetStateCode, Left: a.StateCode, Right: b.StateCode}
	}
	return nil
}

func differ(a, b string) bool {
	return a != "" && b != "" && a != b
}

// setsDiffer compares two value lists as sets; an empty side never differs.
func setsDiffer(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return strings.Join(dedupeSorted(a), "\x00") != strings.Join(dedupeSorted(b), "\x00")
}

// agesDiffer compares birth years as sets and genders only where both sides
// state one.
func agesDiffer(a, b []AgeToken) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	keysA, keysB := make([]string, 0, len(a)), make([]string, 0, len(b))
	gendersA, gendersB := []string{}, []string{}
	for _, t := range a {
		keysA = append(keysA, t.Key)
		if t.Gender != "" {
			gendersA = append(gendersA, t.Gender)
		}
	}
	for _, t := range b {
		keysB = append(keysB, t.Key)
		if t.Gender != "" {
			gendersB = append(gendersB, t.Gender)
		}
	}
	return setsDiffer(keysA, keysB) || setsDiffer(gendersA, gendersB)
}

func formatAges(tokens []AgeToken) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Key + strings.ToUpper(t.Gender)
	}
	return strings.Join(parts, ",")
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		seen[s] = struct{}{}
	}
	return sortedKeys(seen)
}
