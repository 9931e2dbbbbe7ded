package ocr

import "testing"

func TestParseAxisMax(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"150", 150, true},
		{" 150\n", 150, true},
		{"+20", 20, true},
		{"abc", 0, false},
		{"", 0, false},
		{"15O", 0, false},
		{"1 50", 0, false},
		{"12.5", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseAxisMax(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("ParseAxisMax(%q) = %d,%v want %d,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
