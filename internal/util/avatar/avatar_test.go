package avatar

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorStable(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	a := Color("ada_lovelace")
	assert.Regexp(t, hex, a)
	assert.Equal(t, a, Color("ada_lovelace"))
	assert.NotEqual(t, a, Color("grace_hopper"))
}

func TestTextColor(t *testing.T) {
	assert.Equal(t, "#ffffff", TextColor("#000000"))
	assert.Equal(t, "#1f2328", TextColor("#ffffff"))
	assert.Equal(t, "#000000", TextColor("not-a-color"))
}

func TestInitials(t *testing.T) {
	for _, tc := range []struct {
		in, out string
	}{
		{"ada_lovelace", "AL"},
		{"grace", "G"},
		{"alan m turing", "AM"},
		{"student@example.com", "SE"},
		{"", "?"},
		{"__", "?"},
		{"Élodie Dupont", "ÉD"},
		{"ana bell", "AB"},
		{"юлия петрова", "ЮП"},
	} {
		assert.Equal(t, tc.out, Initials(tc.in), "input %q", tc.in)
	}
}
