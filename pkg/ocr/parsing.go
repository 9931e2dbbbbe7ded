package ocr

import (
	"strconv"
	"strings"
)

// ParseAxisMax parses recognized axis-label text as an integer. Anything that
// is not a plain integer (empty, garbled, decimal) yields (0, false).
func ParseAxisMax(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return n, true
}
