package contextbuilder

import "strings"

// Document is the sanitized, size-bounded assembly of per-source context
// handed to the LLM as grounding.
type Document struct {
	Notes    string
	Tasks    string
	Calendar string
	Email    string

	// Sources lists the source identifiers that actually contributed,
	// used for the assistant message's citation field.
	Sources []string

	// Truncated is set when the character budget forced trimming.
	Truncated bool

	// TokenEstimate is advisory, for logging prompt pressure.
	TokenEstimate int
}

// Render produces the fenced section layout the role preambles refer to.
// Empty sections render with their banner so the model sees an explicit
// absence instead of inventing content.
func (d Document) Render() string {
	var b strings.Builder

	section := func(name, body string) {
		b.WriteString("===== BEGIN " + name + " CONTEXT =====\n")
		if body == "" {
			b.WriteString("(no data)\n")
		} else {
			b.WriteString(body)
			b.WriteString("\n")
		}
		b.WriteString("===== END " + name + " CONTEXT =====\n\n")
	}

	section("NOTES", d.Notes)
	section("TASKS", d.Tasks)
	section("CALENDAR", d.Calendar)
	section("EMAIL", d.Email)

	return strings.TrimSuffix(b.String(), "\n")
}
