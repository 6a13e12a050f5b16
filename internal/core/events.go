package core

import "context"

// SecurityEventKind classifies audit events.
type SecurityEventKind string

const (
	EventInjectionAttempt SecurityEventKind = "injection_attempt"
	EventBlockedFetch     SecurityEventKind = "blocked_fetch"
	EventInputRejected    SecurityEventKind = "input_validation_failed"
)

// SecurityEvent is an audit record. Fragment identifies the offending
// source (a fragment id, "user_message", a URL) without carrying content.
type SecurityEvent struct {
	Kind     SecurityEventKind
	Fragment string
	Details  map[string]string
}

// AuditRecorder receives security events. Record must never fail the
// caller's request; implementations log and move on.
type AuditRecorder interface {
	Record(ctx context.Context, ev SecurityEvent)
}
