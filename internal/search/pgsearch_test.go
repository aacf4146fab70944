package search

import "testing"

func TestLikePatternEscapesWildcards(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"바보", "%바보%"},
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`back\slash`, `%back\\slash%`},
		{"%_", `%\%\_%`},
	}
	for _, tc := range cases {
		if got := likePattern(tc.text); got != tc.want {
			t.Fatalf("likePattern(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
