package roles

import "strings"

// Selector resolves a role for a message. Selection itself is pure; the
// override config it reads is swapped atomically on reload.
type Selector struct {
	cfg *Config
}

func NewSelector(cfg *Config) *Selector {
	return &Selector{cfg: cfg}
}

// Select matches the message against role triggers and assembles the
// instruction preamble: built-in role text, then capability usage text,
// then global overrides, then role overrides. Global text comes first so
// role-specific text can refine but not silently contradict it.
func (s *Selector) Select(message string) Selection {
	def := detect(message)
	caps := def.caps

	var override RoleOverride
	var global string
	if s.cfg != nil {
		snap := s.cfg.snapshot()
		global = snap.GlobalInstructions
		override = snap.Roles[def.id]
	}

	if override.EnableActions != nil {
		caps.Actions = *override.EnableActions
	}
	if override.EnableSearch != nil {
		caps.Search = *override.EnableSearch
	}
	if override.EnableFetch != nil {
		caps.Fetch = *override.EnableFetch
	}

	var b strings.Builder
	b.WriteString(def.preamble)
	if caps.Actions {
		b.WriteString("\n")
		b.WriteString(actionInstructions)
	}
	if caps.Search {
		b.WriteString("\n")
		b.WriteString(searchInstructions)
	}
	if caps.Fetch {
		b.WriteString("\n")
		b.WriteString(fetchInstructions)
	}
	if global != "" {
		b.WriteString("\n\n===== GLOBAL CUSTOM INSTRUCTIONS =====\n")
		b.WriteString(global)
	}
	if override.CustomInstructions != "" {
		b.WriteString("\n\n===== ROLE-SPECIFIC CUSTOM INSTRUCTIONS =====\n")
		b.WriteString(override.CustomInstructions)
	}

	return Selection{
		RoleID:       def.id,
		Instructions: b.String(),
		Caps:         caps,
	}
}
