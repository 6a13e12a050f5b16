package config

import (
	"context"

	"github.com/caarlos0/env/v11"

	"github.com/sandevgo/aide/pkg/log"
)

// VectorsConfig points at the notes vector index used for semantic search.
type VectorsConfig struct {
	BaseURL string `env:"VECTOR_INDEX_BASE_URL,required,notEmpty"`
	APIKey  string `env:"VECTOR_INDEX_API_KEY"`
	TopK    int    `env:"VECTOR_INDEX_TOP_K" envDefault:"5"`
}

func NewVectorsConfig(ctx context.Context) *VectorsConfig {
	c := &VectorsConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse vector index config")
	}
	return c
}
