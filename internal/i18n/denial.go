// Package i18n renders the fixed, localized denial messages the bot gateway
// shows when an authorization check fails.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"

	"github.com/wardenbot/warden/internal/capability"
)

var supported = []language.Tag{
	language.English, // fallback
	language.Spanish,
	language.French,
	language.German,
	language.BrazilianPortuguese,
	language.Japanese,
}

var matcher = language.NewMatcher(supported)

// One format per supported tag, in matcher order. Each takes the required
// capability name.
var denialFormats = map[language.Tag]string{
	language.English:             "You do not have permission to do that. Required capability: %s.",
	language.Spanish:             "No tienes permiso para hacer eso. Capacidad requerida: %s.",
	language.French:              "Vous n'avez pas la permission de faire cela. Capacité requise : %s.",
	language.German:              "Dir fehlt die Berechtigung dafür. Erforderliche Fähigkeit: %s.",
	language.BrazilianPortuguese: "Você não tem permissão para isso. Capacidade necessária: %s.",
	language.Japanese:            "この操作を行う権限がありません。必要な権限: %s。",
}

// DenialMessage returns the denial text for the best match against the
// caller's Accept-Language header, naming the required capability. English
// is the fallback for unknown or empty preferences.
func DenialMessage(acceptLanguage string, required capability.Capability) string {
	tag := match(acceptLanguage)
	format, ok := denialFormats[tag]
	if !ok {
		format = denialFormats[language.English]
	}
	return fmt.Sprintf(format, required)
}

func match(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return language.English
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return language.English
	}
	_, index, _ := matcher.Match(prefs...)
	return supported[index]
}
