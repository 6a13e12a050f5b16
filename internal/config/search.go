package config

import (
	"context"

	"github.com/caarlos0/env/v11"

	"github.com/sandevgo/aide/pkg/log"
)

// SearchConfig points at a SearxNG-compatible metasearch instance.
type SearchConfig struct {
	BaseURL string `env:"SEARCH_BASE_URL,required,notEmpty"`
	APIKey  string `env:"SEARCH_API_KEY"`
}

func NewSearchConfig(ctx context.Context) *SearchConfig {
	c := &SearchConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse search config")
	}
	return c
}
