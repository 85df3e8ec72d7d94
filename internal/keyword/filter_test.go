package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quotewire/internal/model"
)

func TestFilter_Match(t *testing.T) {
	f := NewFilter([]string{"war", "Hostage", "battle", "war"})

	got := f.Match(model.Article{Title: "War Breaks Out", Body: "Two HOSTAGES were released."})
	assert.Equal(t, []string{"war", "Hostage"}, got)

	assert.Nil(t, f.Match(model.Article{Title: "Markets rally", Body: "Stocks rose."}))
}

func TestFilter_EmptyArticleNeverMatches(t *testing.T) {
	f := NewFilter([]string{"war"})
	assert.Nil(t, f.Match(model.Article{}))
}

func TestFilter_SubstringSemantics(t *testing.T) {
	f := NewFilter([]string{"war"})
	assert.Equal(t, []string{"war"}, f.Match(model.Article{Title: "Software award announced"}))
}
