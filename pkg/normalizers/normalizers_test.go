package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTeamName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases and collapses", "  FC   Dallas 2014  Blue ", "fc dallas 2014 blue"},
		{"drops dots in abbreviations", "Solar S.C. 12B", "solar sc 12b"},
		{"folds accents", "Atlético Académie", "atletico academie"},
		{"keeps year ranges", "Rush '15/16B", "rush 15/16b"},
		{"separators become spaces", "Crew-2_(North)", "crew 2 north"},
		{"ampersand", "Sporting B&G", "sporting b and g"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTeamName(tt.input))
		})
	}
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "munchen", ApplyChain("  München ", "trim", "fold_accents", "lowercase"))
	assert.Equal(t, "abc", Apply("abc", "does_not_exist"))

	fn, ok := Get("nteam")
	assert.True(t, ok)
	assert.Equal(t, "solar sc", fn("SOLAR SC"))
}

func TestNormalizeExternalID(t *testing.T) {
	assert.Equal(t, "AbC-12", NormalizeExternalID("  AbC-12\t"))
}
