package i18n

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wardenbot/warden/internal/capability"
)

func TestDenialMessageEnglishFallback(t *testing.T) {
	for _, header := range []string{"", "zz", "tlh-KL", "da, nb"} {
		msg := DenialMessage(header, capability.RunAnalysis)
		assert.Contains(t, msg, "run-analysis", "header %q", header)
		assert.Contains(t, msg, "You do not have permission", "header %q", header)
	}
}

func TestDenialMessageMatchesPreference(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"es", "No tienes permiso"},
		{"es-MX", "No tienes permiso"},
		{"fr-CA, en;q=0.5", "Vous n'avez pas"},
		{"de-DE", "Berechtigung"},
		{"pt-BR", "Você não tem"},
		{"ja", "権限"},
		{"en-GB", "You do not have permission"},
	}
	for _, tc := range cases {
		msg := DenialMessage(tc.header, capability.Consult)
		assert.True(t, strings.Contains(msg, tc.want), "header %q got %q", tc.header, msg)
		assert.Contains(t, msg, "consult")
	}
}
