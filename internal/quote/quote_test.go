package quote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_PairsInOrder(t *testing.T) {
	e := NewExtractor(DefaultMinLen, DefaultMaxLen)
	text := "He said “we will rebuild every home”. " +
		`Officials warned "the fighting is not over yet" on Monday. ` +
		"A witness added ‘nobody slept that night’."

	assert.Equal(t, []string{
		"the fighting is not over yet",
		"we will rebuild every home",
		"nobody slept that night",
	}, e.Extract(text))
}

func TestExtract_EndToEndSentence(t *testing.T) {
	e := NewExtractor(DefaultMinLen, DefaultMaxLen)
	got := e.Extract(`"I am still alive," she said.`)
	assert.Equal(t, []string{"I am still alive,"}, got)
	assert.Equal(t, "i am still alive,", Normalize(got[0]))
}

func TestExtract_Bounds(t *testing.T) {
	e := NewExtractor(8, 20)

	assert.Empty(t, e.Extract(`"12345678"`), "length equal to min is excluded")
	assert.Equal(t, []string{"123456789"}, e.Extract(`"123456789"`))
	assert.Empty(t, e.Extract(`"`+strings.Repeat("x", 20)+`"`), "length equal to max is excluded")
	assert.Equal(t, []string{"trimmed span"}, e.Extract(`"   trimmed span   "`))
}

func TestExtract_DropsURLs(t *testing.T) {
	e := NewExtractor(DefaultMinLen, DefaultMaxLen)
	text := `see "https://example.com/a/b" and "www.example.com/page" and "WWW.EXAMPLE.COM/x" but keep "what a day it was"`
	assert.Equal(t, []string{"what a day it was"}, e.Extract(text))
}

func TestExtract_SingleLevelMatching(t *testing.T) {
	e := NewExtractor(2, DefaultMaxLen)
	// The straight pair matches open with the next close, so the middle
	// text between the two inner marks is never a candidate.
	assert.Equal(t, []string{"one two", "five six"}, e.Extract(`"one two" three four "five six" "unclosed`))
}

func TestNormalizeAndID(t *testing.T) {
	assert.Equal(t, "we will rebuild", Normalize("  We   WILL\n rebuild "))
	assert.Equal(t, Normalize("We will rebuild"), Normalize(Normalize("We will rebuild")))

	assert.Equal(t, ID("We will rebuild"), ID("  we will   REBUILD"))
	assert.NotEqual(t, ID("We will rebuild"), ID("We will not rebuild"))
	assert.Len(t, ID("x"), 64)
}
