package dialogue

import (
	"fmt"
	"strings"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
)

// Canned assistant copy. The greeting wording is approved by the Compras team
// and must not drift (see TestGreetingApprovedWording).
const (
	msgGreeting = "¡Quiubo parce! Soy La Colectiva, aquí pa' ayudarte con tu solicitud de compra. " +
		"Para comenzar, cuéntame: ¿para qué cliente es esta solicitud?"

	msgClientTooShort = "Necesito un poquito más: escríbeme el nombre del cliente, ¿sí?"

	msgAskService = "Entendido. Ahora, ¿qué servicio necesitas cotizar?"

	msgDesignPrompt   = "¡Listo! ¿Tienes un link del diseño o arte? Pégalo aquí (http...) o responde NO."
	msgDesignReprompt = "No te entendí. Pégame el link del diseño (debe empezar por http) o responde NO."

	msgObservationsPrompt = "¿Quieres agregar alguna observación adicional? Escríbela o responde NO."
	msgObservationsFollow = "Claro, cuéntame: ¿qué observación quieres dejar?"

	msgNoSpecificQuestions = "Para este servicio no hay preguntas específicas."

	// Annotations recorded in place of the literal reply when the user asks
	// for a recommendation or an explanation.
	answerAdviseNote  = "[El usuario pide recomendación del equipo de Compras para este punto]"
	answerExplainNote = "[El usuario pidió una explicación; el equipo de Compras debe ampliar este punto]"

	msgAdviseAck  = "Tranquilo, dejo la nota pa' que el equipo te recomiende. "
	msgExplainAck = "Listo, dejo anotado que te expliquemos ese punto. "
)

func msgClientNotFound(term string, suggestions []string) string {
	if len(suggestions) == 0 {
		return fmt.Sprintf("No logré encontrar a \"%s\" en nuestra base de datos. ¿Podrías verificar el nombre e intentarlo de nuevo?", term)
	}
	return fmt.Sprintf("No logré encontrar a \"%s\". ¿Será alguno de estos? %s. Escríbeme el nombre otra vez, porfa.",
		term, strings.Join(suggestions, ", "))
}

func msgClientChoices(term string, names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Encontré varios clientes para \"%s\":\n", term)
	for i, n := range names {
		fmt.Fprintf(&b, "%d. %s\n", i+1, n)
	}
	b.WriteString("¿Cuál es? Responde con el número o el nombre.")
	return b.String()
}

func msgSubdivisions(client string, subs []string) string {
	return fmt.Sprintf("Perfecto, cliente encontrado: %s. Veo que tiene estas subdivisiones: %s. ¿Cuál eliges? También puedes responder 'General/Ninguna'.",
		client, strings.Join(subs, ", "))
}

func msgSubdivisionRetry(subs []string) string {
	return fmt.Sprintf("Esa subdivisión no me suena. Las opciones son: %s, o 'General/Ninguna'.", strings.Join(subs, ", "))
}

func msgClientConfirmed(name string) string {
	return fmt.Sprintf("¡De una! Seguimos con %s. %s", name, msgAskService)
}

func msgServiceNotFound(term string, categories []string) string {
	return fmt.Sprintf("No encontré un servicio que coincida con \"%s\". Puedes intentar con otra descripción o elegir una categoría: %s.",
		term, strings.Join(categories, ", "))
}

func msgServiceChoices(term string, options []catalog.Service) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entendido. Encontré varios servicios posibles para \"%s\":\n", term)
	for i, s := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.ToUpper(s.Path()))
	}
	b.WriteString("¿Con cuál seguimos? Puedes responder con el número o el nombre completo.")
	return b.String()
}

func msgServiceReprompt(options []catalog.Service) string {
	var b strings.Builder
	b.WriteString("No te entendí. Responde con el número de la lista o el nombre completo:\n")
	for i, s := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.ToUpper(s.Path()))
	}
	return b.String()
}

func msgServiceSelected(s catalog.Service) string {
	return fmt.Sprintf("Perfecto. Servicio: %s. Para tu solicitud necesito hacerte unas preguntas...", s.Path())
}

func msgBriefQuestion(q catalog.BriefQuestion, index, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%d/%d) %s", index+1, total, q.Text)
	if q.Detail != nil && *q.Detail != "" {
		fmt.Fprintf(&b, "\n%s", *q.Detail)
	}
	return b.String()
}

func msgTicketCreated(summary string) string {
	return fmt.Sprintf("¡Listo parce! Tu solicitud quedó creada.\n\n%s\nEl equipo de Compras se pondrá en contacto pronto.", summary)
}

func msgTicketFailed(err error) string {
	return fmt.Sprintf("Uy, parce, no pude guardar tu solicitud: %v. Volvamos a empezar en un momento, ¿sí? Lo siento.", err)
}

func msgSmalltalk(reprompt string) string {
	return "¡Qué más pues! Todo bien. Sigamos con lo nuestro: " + reprompt
}
