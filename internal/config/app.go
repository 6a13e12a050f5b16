package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/sandevgo/aide/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"AIDE_RUNTIME_PATH" envDefault:".aide"`
	SessionID   string `env:"AIDE_SESSION_ID" envDefault:"default"`

	// Transport flags
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`
	EnableCLI      bool `env:"ENABLE_CLI" envDefault:"true"`

	// Context management
	ContextWindowSize int `env:"CONTEXT_WINDOW_SIZE" envDefault:"30"`

	// Context source toggles
	EnableNotes    bool `env:"ENABLE_NOTES_CONTEXT" envDefault:"true"`
	EnableTasks    bool `env:"ENABLE_TASKS_CONTEXT" envDefault:"true"`
	EnableCalendar bool `env:"ENABLE_CALENDAR_CONTEXT" envDefault:"true"`
	EnableEmail    bool `env:"ENABLE_EMAIL_CONTEXT" envDefault:"true"`

	// Terminal actions are purged after this many hours
	ActionRetentionHours int `env:"ACTION_RETENTION_HOURS" envDefault:"168"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "aide.db")
}

func (c AppConfig) GetRolesConfigPath() string {
	return filepath.Join(c.RuntimePath, "roles.yaml")
}
