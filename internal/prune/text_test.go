package prune

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBytes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		in     string
		max    int
		marker string
		want   string
	}{
		{name: "fits", in: "hello", max: 5, marker: DefaultMarker, want: "hello"},
		{name: "ascii cut", in: "hello world", max: 8, marker: DefaultMarker, want: "hello..."},
		{name: "rune boundary", in: "中文字", max: 7, marker: "", want: "中文"},
		{name: "marker too long", in: "abcdef", max: 2, marker: DefaultMarker, want: "ab"},
		{name: "zero", in: "abc", max: 0, marker: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Bytes(tc.in, tc.max, tc.marker)
			if got != tc.want {
				t.Fatalf("Bytes(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
			if !utf8.ValidString(got) || len(got) > tc.max {
				t.Fatalf("invalid result %q", got)
			}
		})
	}
}

func TestRunes(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("字", 10)
	if got := Runes(long, 10, Ellipsis); got != long {
		t.Fatalf("text within limit changed: %q", got)
	}
	got := Runes(long, 5, Ellipsis)
	if got != "字字字字…" {
		t.Fatalf("unexpected cut %q", got)
	}
	if got := Runes(long, 2, DefaultMarker); got != "字字" {
		t.Fatalf("marker longer than budget: %q", got)
	}
}
