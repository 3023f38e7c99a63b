// Package names derives a human name from a local part and flags
// random-looking ones. Both are pure heuristics over character
// distributions; they inform the result record and never change the
// verdict.
package names

import (
	"strings"
	"unicode"
)

var separators = "._-+"

// Derive extracts a display name from a local part: "jane.doe" becomes
// "Jane Doe". Digits are dropped from the tokens; a local part that
// yields no alphabetic tokens derives nothing.
func Derive(local string) string {
	tokens := split(local)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		letters := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return r
			}
			return -1
		}, tok)
		if letters == "" {
			continue
		}
		out = append(out, title(letters))
	}
	return strings.Join(out, " ")
}

// LooksRandom flags strings like "xkqzvbnw" or "asdf1234" that a signup
// bot generates but no parent does. The signal is character-class
// distribution: long consonant runs, absent vowels, heavy digit mixing.
// Short inputs are never flagged; there is not enough signal in them.
func LooksRandom(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))

	tokens := split(s)
	letterTokens := 0
	for _, tok := range tokens {
		if tokenLooksRandom(tok) {
			return true
		}
		if hasLetter(tok) {
			letterTokens++
		}
	}
	// More than two name-like tokens is itself unusual for a real name.
	return letterTokens > 3
}

func split(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return strings.ContainsRune(separators, r)
	})
}

func tokenLooksRandom(tok string) bool {
	letters := 0
	digits := 0
	vowels := 0
	maxConsonantRun := 0
	run := 0

	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			digits++
			run = 0
		case unicode.IsLetter(r):
			letters++
			if strings.ContainsRune("aeiouy", r) {
				vowels++
				run = 0
			} else {
				run++
				if run > maxConsonantRun {
					maxConsonantRun = run
				}
			}
		default:
			run = 0
		}
	}

	if letters < 5 {
		return false
	}
	// Five or more consonants in a row does not happen in names, and a
	// vowelless token of any length reads as keyboard mashing. (The run
	// rule alone would miss "xq.zv"-style short bursts; the vowel rule
	// alone would flag real names like Schmidt.)
	if maxConsonantRun >= 5 {
		return true
	}
	if vowels == 0 {
		return true
	}
	// Digit-letter sandwiches like "jd81kx" read as generated.
	if digits >= 3 && letters >= 5 {
		return true
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func title(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
