package domainlist

import (
	_ "embed"
	"strings"
)

//go:embed disposable.txt
var rawDisposable string

//go:embed free.txt
var rawFree string

//go:embed role.txt
var rawRole string

var (
	disposableSet map[string]struct{}
	freeSet       map[string]struct{}
	roleSet       map[string]struct{}
)

func init() {
	disposableSet = parseList(rawDisposable)
	freeSet = parseList(rawFree)
	roleSet = parseList(rawRole)
}

// parseList reads one entry per line, skipping blanks and # comments.
func parseList(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[strings.ToLower(line)] = struct{}{}
	}
	return set
}
