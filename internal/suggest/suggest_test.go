package suggest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/reachkit/internal/suggest"
)

func TestSuggest_CommonTypos(t *testing.T) {
	s := suggest.New(2)

	tests := map[string]string{
		"gmial.com":     "gmail.com",
		"gamil.com":     "gmail.com",
		"gmai.com":      "gmail.com",
		"yaho.com":      "yahoo.com",
		"hotmial.com":   "hotmail.com",
		"outlokk.com":   "outlook.com",
		"protonmai.com": "protonmail.com",
	}
	for input, want := range tests {
		assert.Equal(t, want, s.Suggest(input), "input %q", input)
	}
}

func TestSuggest_ExactMatchMeansNoSuggestion(t *testing.T) {
	s := suggest.New(2)
	assert.Empty(t, s.Suggest("gmail.com"))
	assert.Empty(t, s.Suggest("GMAIL.COM"))
}

func TestSuggest_FarDomainsMeanNoSuggestion(t *testing.T) {
	s := suggest.New(2)
	assert.Empty(t, s.Suggest("example.com"))
	assert.Empty(t, s.Suggest("my-company-mail.io"))
	assert.Empty(t, s.Suggest(""))
}

func TestSuggest_ThresholdIsRespected(t *testing.T) {
	strict := suggest.New(1)
	assert.Empty(t, strict.Suggest("gmaiil.co"), "two edits exceed a threshold of one")

	loose := suggest.New(2)
	assert.Equal(t, "gmail.com", loose.Suggest("gmaiil.co"))
}

func TestSuggest_ExtraDomains(t *testing.T) {
	s := suggest.New(2, "corp.example.com")
	assert.Equal(t, "corp.example.com", s.Suggest("corp.exmple.com"))
	assert.Empty(t, s.Suggest("corp.example.com"))
}
