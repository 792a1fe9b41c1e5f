package nameparser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Gender of a team as written in its name.
type Gender string

const (
	GenderUnknown Gender = ""
	GenderBoys    Gender = "boys"
	GenderGirls   Gender = "girls"
)

// Initial returns "b", "g" or "".
func (g Gender) Initial() string {
	switch g {
	case GenderBoys:
		return "b"
	case GenderGirls:
		return "g"
	}
	return ""
}

func genderFromLetter(s string) Gender {
	switch s {
	case "b":
		return GenderBoys
	case "g":
		return GenderGirls
	}
	return GenderUnknown
}

// Age is a team's age bracket. BirthYear is the canonical form; Group is the
// U## label derived from (or written as) the same bracket.
type Age struct {
	BirthYear int
	Group     string
	Raw       string
}

// Known reports whether any age information was found.
func (a Age) Known() bool {
	return a.BirthYear != 0 || a.Group != ""
}

// Key is the canonical comparison key: the birth year when known.
func (a Age) Key() string {
	if a.BirthYear != 0 {
		return strconv.Itoa(a.BirthYear)
	}
	return a.Group
}

// agePattern is one entry of the priority-ordered strategy list. The first
// pattern that matches any token wins.
type agePattern struct {
	name    string
	re      *regexp.Regexp
	extract func(p *Parser, m []string) (Age, Gender, bool)
}

func defaultPatterns() []agePattern {
	return []agePattern{
		{
			name: "age_group",
			re:   regexp.MustCompile(`^u(\d{1,2})([bg])?$`),
			extract: func(p *Parser, m []string) (Age, Gender, bool) {
				n, _ := strconv.Atoi(m[1])
				return p.fromGroup(n), genderFromLetter(m[2]), n > 0
			},
		},
		{
			name: "gendered_age_group",
			re:   regexp.MustCompile(`^([bg])u(\d{1,2})$`),
			extract: func(p *Parser, m []string) (Age, Gender, bool) {
				n, _ := strconv.Atoi(m[2])
				return p.fromGroup(n), genderFromLetter(m[1]), n > 0
			},
		},
		{
			name: "short_year_gender",
			re:   regexp.MustCompile(`^(?:(\d{2})([bg])|([bg])(\d{2}))$`),
			extract: func(p *Parser, m []string) (Age, Gender, bool) {
				digits, letter := m[1], m[2]
				if digits == "" {
					digits, letter = m[4], m[3]
				}
				yy, _ := strconv.Atoi(digits)
				return p.fromYear(expandYear(yy)), genderFromLetter(letter), true
			},
		},
		{
			name: "year_gender",
			re:   regexp.MustCompile(`^(?:((?:19|20)\d{2})([bg])|([bg])((?:19|20)\d{2}))$`),
			extract: func(p *Parser, m []string) (Age, Gender, bool) {
				digits, letter := m[1], m[2]
				if digits == "" {
					digits, letter = m[4], m[3]
				}
				year, _ := strconv.Atoi(digits)
				return p.fromYear(year), genderFromLetter(letter), true
			},
		},
		{
			name: "year",
			re:   regexp.MustCompile(`^((?:19|20)\d{2})$`),
			extract: func(p *Parser, m []string) (Age, Gender, bool) {
				year, _ := strconv.Atoi(m[1])
				return p.fromYear(year), GenderUnknown, true
			},
		},
		{
			name: "short_number",
			re:   regexp.MustCompile(`^(\d{2})$`),
			extract: func(p *Parser, m []string) (Age, Gender, bool) {
				n, _ := strconv.Atoi(m[1])
				if year := expandYear(n); year >= p.opts.MinBirthYear && year <= p.opts.MaxBirthYear {
					return p.fromYear(year), GenderUnknown, true
				}
				return p.fromGroup(n), GenderUnknown, n > 0
			},
		},
		{
			name: "year_range",
			re:   regexp.MustCompile(`^([bg])?(\d{2}|\d{4})/(\d{2}|\d{4})([bg])?$`),
			extract: func(p *Parser, m []string) (Age, Gender, bool) {
				a, b := rangeYear(m[2]), rangeYear(m[3])
				letter := m[1]
				if letter == "" {
					letter = m[4]
				}
				return p.fromYear(min(a, b)), genderFromLetter(letter), true
			},
		},
	}
}

// expandYear turns a 2-digit year into a 4-digit one with a pivot at 30.
func expandYear(yy int) int {
	if yy < 30 {
		return 2000 + yy
	}
	return 1900 + yy
}

func rangeYear(s string) int {
	n, _ := strconv.Atoi(s)
	if len(s) == 2 {
		return expandYear(n)
	}
	return n
}

func (p *Parser) fromYear(year int) Age {
	a := Age{BirthYear: year}
	if p.opts.SeasonYear > year && p.opts.SeasonYear-year < 100 {
		a.Group = fmt.Sprintf("U%d", p.opts.SeasonYear-year)
	}
	return a
}

func (p *Parser) fromGroup(n int) Age {
	a := Age{Group: fmt.Sprintf("U%d", n)}
	if p.opts.SeasonYear > 0 {
		a.BirthYear = p.opts.SeasonYear - n
	}
	return a
}

// MatchAge runs the pattern list against a single token.
func (p *Parser) MatchAge(token string) (Age, Gender, bool) {
	lower := strings.ToLower(token)
	for _, pat := range p.patterns {
		if age, gender, ok := pat.apply(p, lower); ok {
			return age, gender, true
		}
	}
	return Age{}, GenderUnknown, false
}

func (pat agePattern) apply(p *Parser, lower string) (Age, Gender, bool) {
	m := pat.re.FindStringSubmatch(lower)
	if m == nil {
		return Age{}, GenderUnknown, false
	}
	age, gender, ok := pat.extract(p, m)
	if !ok {
		return Age{}, GenderUnknown, false
	}
	age.Raw = lower
	return age, gender, true
}
