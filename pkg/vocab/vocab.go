// Package vocab holds the immutable word tables used to take team names apart.
//
// A Vocabulary is built once (from the embedded defaults or an operator file)
// and shared read-only by the name parser, the feature extractor and the
// similarity scorer.
package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// Tier classifies a program family for league-tier comparisons.
type Tier string

const (
	TierNone     Tier = ""
	TierPrimary  Tier = "primary"
	TierRegional Tier = "regional"
)

// Program is one league/program family and the aliases that fold into it.
type Program struct {
	Family  string   `yaml:"family"`
	Label   string   `yaml:"label"`
	Tier    Tier     `yaml:"tier"`
	Aliases []string `yaml:"aliases"`
}

// Document is the on-disk shape of a vocabulary file.
type Document struct {
	Colors        map[string]string `yaml:"colors"`
	Directions    map[string]string `yaml:"directions"`
	Programs      []Program         `yaml:"programs"`
	LocationCodes []string          `yaml:"location_codes"`
	States        []string          `yaml:"states"`
	RomanNumerals map[string]int    `yaml:"roman_numerals"`
	Ordinals      map[string]int    `yaml:"ordinals"`
	Genders       map[string]string `yaml:"genders"`
	ClubSuffixes  []string          `yaml:"club_suffixes"`
}

// Vocabulary is a read-only lookup view over a Document.
type Vocabulary struct {
	colors          map[string]string
	directions      map[string]string
	programs        map[string]string
	families        map[string]Program
	maxProgramWords int
	locations       map[string]struct{}
	states          map[string]struct{}
	romans          map[string]int
	ordinals        map[string]int
	genders         map[string]string
	clubSuffixes    map[string]struct{}
}

// Default returns the vocabulary compiled into the binary.
func Default() *Vocabulary {
	v, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("vocab: embedded defaults are invalid: %v", err))
	}
	return v
}

// Load reads a vocabulary file. An empty path returns the defaults.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Vocabulary from YAML bytes.
func Parse(data []byte) (*Vocabulary, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}
	return New(doc)
}

// New builds a Vocabulary from an in-memory Document. All keys are lowercased.
func New(doc Document) (*Vocabulary, error) {
	v := &Vocabulary{
		colors:       lowerMap(doc.Colors),
		directions:   lowerMap(doc.Directions),
		programs:     make(map[string]string),
		families:     make(map[string]Program),
		locations:    lowerSet(doc.LocationCodes),
		states:       lowerSet(doc.States),
		romans:       make(map[string]int, len(doc.RomanNumerals)),
		ordinals:     make(map[string]int, len(doc.Ordinals)),
		genders:      lowerMap(doc.Genders),
		clubSuffixes: lowerSet(doc.ClubSuffixes),
	}

	for k, n := range doc.RomanNumerals {
		v.romans[strings.ToLower(k)] = n
	}
	for k, n := range doc.Ordinals {
		v.ordinals[strings.ToLower(k)] = n
	}

	for _, p := range doc.Programs {
		if p.Family == "" {
			return nil, fmt.Errorf("program entry without family")
		}
		if p.Label == "" {
			p.Label = p.Family
		}
		if _, dup := v.families[p.Family]; dup {
			return nil, fmt.Errorf("duplicate program family %q", p.Family)
		}
		v.families[p.Family] = p
		for _, alias := range p.Aliases {
			key := strings.Join(strings.Fields(strings.ToLower(alias)), " ")
			if key == "" {
				continue
			}
			if other, dup := v.programs[key]; dup && other != p.Family {
				return nil, fmt.Errorf("program alias %q claimed by %q and %q", key, other, p.Family)
			}
			v.programs[key] = p.Family
			if n := len(strings.Fields(key)); n > v.maxProgramWords {
				v.maxProgramWords = n
			}
		}
	}

	return v, nil
}

func lowerMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, val := range in {
		out[strings.ToLower(k)] = strings.ToLower(val)
	}
	return out
}

func lowerSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		out[strings.ToLower(s)] = struct{}{}
	}
	return out
}

// Color returns the canonical color for a token.
func (v *Vocabulary) Color(token string) (string, bool) {
	c, ok := v.colors[strings.ToLower(token)]
	return c, ok
}

// Direction returns the canonical direction for a token.
func (v *Vocabulary) Direction(token string) (string, bool) {
	d, ok := v.directions[strings.ToLower(token)]
	return d, ok
}

// Program matches the longest program alias starting at tokens[i]. It returns
// the family and the number of tokens the alias spans.
func (v *Vocabulary) Program(tokens []string, i int) (string, int, bool) {
	for width := v.maxProgramWords; width >= 1; width-- {
		if i+width > len(tokens) {
			continue
		}
		key := strings.ToLower(strings.Join(tokens[i:i+width], " "))
		if family, ok := v.programs[key]; ok {
			return family, width, true
		}
	}
	return "", 0, false
}

// ProgramInfo returns the family definition.
func (v *Vocabulary) ProgramInfo(family string) (Program, bool) {
	p, ok := v.families[family]
	return p, ok
}

// ProgramTier returns the league tier of a program family.
func (v *Vocabulary) ProgramTier(family string) Tier {
	return v.families[family].Tier
}

func (v *Vocabulary) IsLocationCode(token string) bool {
	_, ok := v.locations[strings.ToLower(token)]
	return ok
}

func (v *Vocabulary) IsStateCode(token string) bool {
	_, ok := v.states[strings.ToLower(token)]
	return ok
}

func (v *Vocabulary) IsClubSuffix(token string) bool {
	_, ok := v.clubSuffixes[strings.ToLower(token)]
	return ok
}

// Roman returns the value of a multi-letter roman numeral.
func (v *Vocabulary) Roman(token string) (int, bool) {
	n, ok := v.romans[strings.ToLower(token)]
	return n, ok
}

func (v *Vocabulary) Ordinal(token string) (int, bool) {
	n, ok := v.ordinals[strings.ToLower(token)]
	return n, ok
}

// Gender maps a gender word ("boys", "women") to "boys" or "girls".
func (v *Vocabulary) Gender(token string) (string, bool) {
	g, ok := v.genders[strings.ToLower(token)]
	return g, ok
}

// Families lists the known program families in sorted order.
func (v *Vocabulary) Families() []string {
	out := make([]string, 0, len(v.families))
	for f := range v.families {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
