package avatar

import (
	"hash/fnv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lucasb-eyer/go-colorful"
)

// Color returns a stable background color for the given key, as a "#rrggbb" string.
func Color(key string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	hue := float64(h.Sum32() % 360)
	return colorful.Hcl(hue, 0.35, 0.72).Clamped().Hex()
}

// TextColor picks black or white text, whichever reads better on the background.
func TextColor(bg string) string {
	c, err := colorful.Hex(bg)
	if err != nil {
		return "#000000"
	}
	l, _, _ := c.Lab()
	if l > 0.6 {
		return "#1f2328"
	}
	return "#ffffff"
}

func Initials(name string) string {
	var b strings.Builder
	n := 0
	for _, word := range strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_' || r == '-' || r == '.' || r == '@'
	}) {
		r, _ := utf8.DecodeRuneInString(word)
		if r == utf8.RuneError {
			continue
		}
		_, _ = b.WriteRune(unicode.ToUpper(r))
		n++
		if n >= 2 {
			break
		}
	}
	if n == 0 {
		return "?"
	}
	return b.String()
}
