package config

import (
	"context"

	"github.com/caarlos0/env/v11"

	"github.com/sandevgo/aide/pkg/log"
)

// PIMConfig points at the personal information service that owns tasks,
// calendar, email and notes.
type PIMConfig struct {
	BaseURL string `env:"PIM_BASE_URL,required,notEmpty"`
	Token   string `env:"PIM_TOKEN,required,notEmpty"`
}

func NewPIMConfig(ctx context.Context) *PIMConfig {
	c := &PIMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse PIM config")
	}
	return c
}
