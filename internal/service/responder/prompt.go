package responder

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/internal/service/contextbuilder"
	"github.com/sandevgo/aide/internal/service/roles"
)

// buildMessages assembles the model conversation: system prompt first, then
// prior history, then the current user message.
func buildMessages(sel roles.Selection, doc *contextbuilder.Document, history []core.Message, userMessage string, now time.Time) []core.Message {
	var system strings.Builder
	system.WriteString(sel.Instructions)
	system.WriteString("\n\nCurrent date and time: ")
	system.WriteString(now.Format("Monday, 2 January 2006, 15:04"))

	if doc != nil {
		if rendered := doc.Render(); rendered != "" {
			system.WriteString("\n\n")
			system.WriteString(rendered)
		}
	}

	out := make([]core.Message, 0, len(history)+2)
	out = append(out, core.Message{Role: core.RoleSystem, Content: system.String()})
	for _, m := range history {
		out = append(out, core.Message{Role: m.Role, Content: m.Content})
	}
	out = append(out, core.Message{Role: core.RoleUser, Content: userMessage})
	return out
}

// lookupResultMessage folds a directive result back into the conversation
// so the next pass can use it.
func lookupResultMessage(d core.Directive, result string) core.Message {
	var label string
	switch d.Kind {
	case core.DirectiveSearch:
		label = fmt.Sprintf("Web search results for %q", d.Payload)
	case core.DirectiveFetch:
		label = fmt.Sprintf("Fetched content of %s", d.Payload)
	}
	return core.Message{
		Role: core.RoleUser,
		Content: fmt.Sprintf("%s:\n\n%s\n\nContinue your response using this information. Do not repeat text you have already written.",
			label, result),
	}
}

// lookupFailureMessage tells the model a lookup failed without ending the
// conversation.
func lookupFailureMessage(d core.Directive, err error) core.Message {
	var what string
	switch d.Kind {
	case core.DirectiveSearch:
		what = fmt.Sprintf("The web search for %q failed", d.Payload)
	case core.DirectiveFetch:
		what = fmt.Sprintf("Fetching %s failed", d.Payload)
	}
	return core.Message{
		Role: core.RoleUser,
		Content: fmt.Sprintf("%s (%v). Continue your response without that information and mention the lookup did not succeed if it matters to the answer.",
			what, err),
	}
}

const finalPassInstruction = "You have used all available lookups. Finish your response now using only the information already gathered. Do not emit any further SEARCH or FETCH lines."
