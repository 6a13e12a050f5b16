package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/sandevgo/aide/internal/config"
	"github.com/sandevgo/aide/internal/providers/llm"
	"github.com/sandevgo/aide/internal/providers/pim"
	"github.com/sandevgo/aide/internal/providers/vectors"
	"github.com/sandevgo/aide/internal/providers/webfetch"
	"github.com/sandevgo/aide/internal/providers/websearch"
	"github.com/sandevgo/aide/internal/sanitize"
	"github.com/sandevgo/aide/internal/service/actions"
	"github.com/sandevgo/aide/internal/service/audit"
	"github.com/sandevgo/aide/internal/service/chat"
	"github.com/sandevgo/aide/internal/service/contextbuilder"
	"github.com/sandevgo/aide/internal/service/responder"
	"github.com/sandevgo/aide/internal/service/roles"
	"github.com/sandevgo/aide/internal/storage/sqlite"
	"github.com/sandevgo/aide/internal/transport/cli"
	"github.com/sandevgo/aide/internal/transport/telegram"
	"github.com/sandevgo/aide/pkg/log"
	"github.com/sandevgo/aide/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	err := initEnv(ctx, config.GetRuntimePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)

	// 2. Storage
	db, err := initStorage(ctx, appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	messagesRepo := sqlite.NewMessagesRepo(db)
	actionsRepo := sqlite.NewActionsRepo(db)

	// 3. AI Provider
	aiProvider, err := llm.NewProvider(ctx, config.NewLLMConfig(ctx))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}

	// 4. Sanitization and audit
	auditLog := audit.NewLogger()
	sanitizer := sanitize.New(auditLog)

	// 5. Personal data and lookup providers
	pimCfg := config.NewPIMConfig(ctx)
	pimClient := pim.New(pimCfg.BaseURL, pimCfg.Token)

	vecCfg := config.NewVectorsConfig(ctx)
	notesIndex := vectors.New(vecCfg.BaseURL, vecCfg.APIKey)

	searchCfg := config.NewSearchConfig(ctx)
	searcher := websearch.New(searchCfg.BaseURL, searchCfg.APIKey)
	fetcher := webfetch.New(auditLog)

	// 6. Context aggregation
	cache := contextbuilder.NewCache(time.Now)
	builderOpts := contextbuilder.DefaultOptions()
	builderOpts.NotesTopK = vecCfg.TopK
	builder := contextbuilder.New(
		builderOpts,
		sanitizer,
		cache,
		notesIndex,
		pimClient,
		pimClient,
		pimClient,
	)

	// 7. Role selection, hot-reloaded from the runtime directory
	rolesCfg := roles.NewConfig(appCfg.GetRolesConfigPath())
	if err := rolesCfg.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("role config watcher unavailable")
	}
	selector := roles.NewSelector(rolesCfg)

	// 8. Response generation and actions
	resp := responder.New(aiProvider, searcher, fetcher, sanitizer, responder.DefaultOptions())

	store := actions.NewStore(actionsRepo, &actions.Executor{
		Tasks:  pimClient,
		Events: pimClient,
		Notes:  pimClient,
		Mail:   pimClient,
	}, cache)
	services = append(services, newPurgeJob(store, appCfg))

	// 9. Chat pipeline
	chatSvc := chat.New(
		sanitizer,
		builder,
		selector,
		resp,
		store,
		messagesRepo,
		contextbuilder.Toggles{
			UseNotes:    appCfg.EnableNotes,
			UseTasks:    appCfg.EnableTasks,
			UseCalendar: appCfg.EnableCalendar,
			UseEmail:    appCfg.EnableEmail,
		},
		appCfg.ContextWindowSize,
	)

	// 10. Transports
	transports, err := initTransports(ctx, appCfg, chatSvc, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transports")
	}
	services = append(services, transports...)

	return services
}

func initStorage(ctx context.Context, cfg *config.AppConfig) (*sql.DB, error) {
	if err := os.MkdirAll(cfg.GetRuntimePath(), 0755); err != nil {
		return nil, err
	}
	return sqlite.NewDB(ctx, cfg.GetDatabasePath())
}

func initTransports(ctx context.Context, cfg *config.AppConfig, chatSvc *chat.Service, store *actions.Store) ([]srv.Service, error) {
	var services []srv.Service

	if cfg.EnableTelegram {
		tgCfg := config.NewTelegramConfig(ctx)
		bot, err := telegram.NewBot(ctx, tgCfg, chatSvc, store)
		if err != nil {
			return nil, err
		}
		services = append(services, bot)
	}

	if cfg.EnableCLI {
		rl, err := cli.NewReadLine(chatSvc, store, cfg)
		if err != nil {
			return nil, err
		}
		services = append(services, rl)
	}

	return services, nil
}

// purgeJob deletes decided actions past their retention window on a schedule.
type purgeJob struct {
	cron      *cron.Cron
	store     *actions.Store
	retention time.Duration
}

func newPurgeJob(store *actions.Store, cfg *config.AppConfig) *purgeJob {
	return &purgeJob{
		cron:      cron.New(),
		store:     store,
		retention: time.Duration(cfg.ActionRetentionHours) * time.Hour,
	}
}

func (p *purgeJob) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)

	_, err := p.cron.AddFunc("@hourly", func() {
		n, err := p.store.PurgeOlderThan(ctx, p.retention)
		if err != nil {
			logger.Error().Err(err).Msg("action purge failed")
			return
		}
		if n > 0 {
			logger.Info().Int64("purged", n).Msg("purged decided actions")
		}
	})
	if err != nil {
		return err
	}

	p.cron.Start()
	return nil
}

func (p *purgeJob) Shutdown(ctx context.Context) error {
	stopCtx := p.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	return nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
