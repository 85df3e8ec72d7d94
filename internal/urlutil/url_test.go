package urlutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://www.bbc.com/news/world-123", "bbc.com/news/world-123"},
		{"http://bbc.com/news/world-123/", "bbc.com/news/world-123"},
		{"https://apnews.com/article/x?utm_source=rss", "apnews.com/article/x"},
		{"https://www.theguardian.com/world/2024/#top", "theguardian.com/world/2024"},
		{"www.npr.org/sections/world/", "npr.org/sections/world"},
		{"  https://www.npr.org/2024/01/01/story?a=1  ", "npr.org/2024/01/01/story"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), tc.in)
		assert.Equal(t, tc.want, Normalize(Normalize(tc.in)), "normalize must be idempotent for %s", tc.in)
	}
}

func TestHash_EquivalentURLsShareKey(t *testing.T) {
	a := Hash("https://www.bbc.com/news/x/")
	b := Hash("http://bbc.com/news/x?ref=home")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Hash("https://bbc.com/news/y"))
}

func TestAbsolute(t *testing.T) {
	base, err := url.Parse("https://www.theguardian.com")
	require.NoError(t, err)

	got, ok := Absolute(base, "/world/2024/jan/01/story")
	require.True(t, ok)
	assert.Equal(t, "https://www.theguardian.com/world/2024/jan/01/story", got)

	got, ok = Absolute(base, "https://apnews.com/article/abc#comments")
	require.True(t, ok)
	assert.Equal(t, "https://apnews.com/article/abc", got)

	for _, href := range []string{"", "#top", "mailto:desk@example.com", "javascript:void(0)"} {
		_, ok := Absolute(base, href)
		assert.False(t, ok, href)
	}
}
