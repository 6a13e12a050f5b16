// Package audit records security events for monitoring. Recording never
// fails the request that triggered it.
package audit

import (
	"context"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/pkg/log"
)

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (l *Logger) Record(ctx context.Context, ev core.SecurityEvent) {
	logEvent := log.FromCtx(ctx).Warn().
		Str("security_event", string(ev.Kind)).
		Str("fragment", ev.Fragment)
	for k, v := range ev.Details {
		logEvent = logEvent.Str(k, v)
	}
	logEvent.Msg("security event")
}

var _ core.AuditRecorder = (*Logger)(nil)

// Nop discards events; used in tests and when auditing is disabled.
type Nop struct{}

func (Nop) Record(context.Context, core.SecurityEvent) {}
