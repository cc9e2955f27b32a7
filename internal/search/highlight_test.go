package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHighlight_WrapsCaseInsensitiveMatch(t *testing.T) {
	out := Highlight("Цемент М500", []string{"цемент"})
	assert.Equal(t, MarkOpen+"Цемент"+MarkClose+" М500", out)
}

func TestHighlight_IgnoresTermsShorterThanMinLength(t *testing.T) {
	out := Highlight("Цемент", []string{"ц"})
	assert.Equal(t, "Цемент", out)
}

func TestHighlight_MergesOverlappingMatches(t *testing.T) {
	out := Highlight("цементная смесь", []string{"цемент", "ментная"})
	assert.Equal(t, MarkOpen+"цементная"+MarkClose+" смесь", out)
}

func TestHighlight_NoMatchReturnsOriginal(t *testing.T) {
	out := Highlight("Кирпич", []string{"цемент"})
	assert.Equal(t, "Кирпич", out)
}
