package dialogue

import (
	"regexp"
	"strings"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/match"
)

var linkPattern = regexp.MustCompile(`^https?://`)

// isLink reports whether the reply, as a whole, looks like a design URL.
func isLink(s string) bool {
	return linkPattern.MatchString(strings.TrimSpace(s))
}

func isNo(s string) bool {
	switch match.Normalize(s) {
	case "no", "nop", "nopes", "no tengo", "no hay", "ninguno", "ninguna":
		return true
	}
	return false
}

func isYes(s string) bool {
	switch match.Normalize(s) {
	case "si", "sip", "claro", "dale", "listo", "ok", "obvio", "de una":
		return true
	}
	return false
}

// isGeneral matches the "no subdivision" escape hatch offered when a client
// has more than one subdivision on file.
func isGeneral(s string) bool {
	n := match.Normalize(s)
	return n == "general" || n == "ninguna" || n == "ninguno" || n == "general ninguna"
}

// asksAdvice detects a brief answer that defers the decision to the
// purchasing team ("no sé", "recomiéndame algo").
func asksAdvice(s string) bool {
	n := match.Normalize(s)
	if n == "no se" || n == "nose" || n == "ni idea" {
		return true
	}
	return strings.Contains(n, "recomienda") || strings.Contains(n, "recomiendame") ||
		strings.Contains(n, "que me recomiendan") || strings.Contains(n, "ustedes que dicen")
}

// asksExplanation detects a request to clarify what a brief question means.
func asksExplanation(s string) bool {
	n := match.Normalize(s)
	return strings.Contains(n, "explicame") || strings.Contains(n, "explica") ||
		strings.Contains(n, "que significa") || strings.Contains(n, "no entiendo")
}

// isSmalltalk catches greetings and pleasantries so the engine can answer in
// kind instead of treating them as a client or service name.
func isSmalltalk(s string) bool {
	switch match.Normalize(s) {
	case "hola", "holi", "buenas", "buenos dias", "buenas tardes", "buenas noches",
		"quiubo", "que mas", "que tal", "como estas", "gracias", "muchas gracias":
		return true
	}
	return false
}
