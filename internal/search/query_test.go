package search

import (
	"reflect"
	"testing"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name              string
		input             string
		expectedFragments []string
		expectedTags      []string
		expectedEmpty     bool
	}{
		{
			name:              "simple query",
			input:             "login",
			expectedFragments: []string{"login"},
		},
		{
			name:              "multiple fragments",
			input:             "  Login   Bug ",
			expectedFragments: []string{"login", "bug"},
		},
		{
			name:              "inline tags",
			input:             "wallet #Go #rust",
			expectedFragments: []string{"wallet"},
			expectedTags:      []string{"go", "rust"},
		},
		{
			name:          "lone hash",
			input:         "#",
			expectedEmpty: true,
		},
		{
			name:              "punctuation splits words",
			input:             "log-in!",
			expectedFragments: []string{"log", "in"},
		},
		{
			name:              "hyphenated word",
			input:             "Login-Page",
			expectedFragments: []string{"login", "page"},
		},
		{
			name:          "punctuation only",
			input:         "?!",
			expectedEmpty: true,
		},
		{
			name:          "empty query",
			input:         "",
			expectedEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := ParseQuery(tt.input)

			if !reflect.DeepEqual(query.Fragments, tt.expectedFragments) {
				t.Errorf("Fragments = %v, want %v", query.Fragments, tt.expectedFragments)
			}
			if !reflect.DeepEqual(query.Tags, tt.expectedTags) {
				t.Errorf("Tags = %v, want %v", query.Tags, tt.expectedTags)
			}
			if query.Empty() != tt.expectedEmpty {
				t.Errorf("Empty() = %v, want %v", query.Empty(), tt.expectedEmpty)
			}
		})
	}
}

func TestWords(t *testing.T) {
	got := words("Fix the Login-page (v2)")
	want := []string{"fix", "the", "login", "page", "v2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("words() = %v, want %v", got, want)
	}
}

func TestScoreFragment(t *testing.T) {
	tests := []struct {
		name     string
		frag     string
		word     string
		minScore float64
		maxScore float64
	}{
		{"exact", "login", "login", ScoreExactMatch, ScoreExactMatch + ScorePositionBonus},
		{"prefix", "log", "login", ScorePrefixMatch, ScorePrefixMatch + ScorePositionBonus},
		{"substring", "gin", "login", ScoreSubstringMatch, ScoreSubstringMatch + ScorePositionBonus},
		{"miss", "wallet", "login", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scoreFragment(tt.frag, tt.word, 0)
			if got < tt.minScore || got > tt.maxScore {
				t.Errorf("scoreFragment(%q, %q) = %v, want in [%v, %v]", tt.frag, tt.word, got, tt.minScore, tt.maxScore)
			}
		})
	}
}

func TestScoreFuzzyCoverage(t *testing.T) {
	if got := scoreFuzzy("lgin", []string{"login"}); got < MinScore {
		t.Errorf("scoreFuzzy(lgin, login) = %v, want >= %v", got, MinScore)
	}
	// "gl" covers a third of "golang", under the coverage threshold.
	if got := scoreFuzzy("gl", []string{"golang"}); got != 0 {
		t.Errorf("scoreFuzzy(gl, golang) = %v, want 0", got)
	}
	if got := scoreFuzzy("xyz", []string{"login"}); got != 0 {
		t.Errorf("scoreFuzzy(xyz, login) = %v, want 0", got)
	}
}
