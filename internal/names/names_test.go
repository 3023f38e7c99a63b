package names_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optimode/reachkit/internal/names"
)

func TestDerive(t *testing.T) {
	tests := map[string]string{
		"jane.doe":      "Jane Doe",
		"jane_doe":      "Jane Doe",
		"jane-doe":      "Jane Doe",
		"jane.doe42":    "Jane Doe",
		"JANE.DOE":      "Jane Doe",
		"jdoe":          "Jdoe",
		"j.r.r.tolkien": "J R R Tolkien",
		"12345":         "",
		"":              "",
	}
	for input, want := range tests {
		assert.Equal(t, want, names.Derive(input), "input %q", input)
	}
}

func TestLooksRandom(t *testing.T) {
	random := []string{
		"xkqzvbnw",
		"qwrtpsdfgh",
		"jd81kx9m",
		"zxcvb.nmqwr",
	}
	for _, s := range random {
		assert.True(t, names.LooksRandom(s), "%q should look random", s)
	}

	legitimate := []string{
		"jane.doe",
		"john",
		"maria.garcia",
		"wolfgang.schmidt",
		"li.wei",
		"information",
	}
	for _, s := range legitimate {
		assert.False(t, names.LooksRandom(s), "%q should not look random", s)
	}
}
