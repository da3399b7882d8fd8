// Package app wires the quiz bot together: configuration, storage driver,
// content sources, the workflow engine and the Telegram route table.
package app

import (
	"fmt"

	"github.com/aleksashka/quiz-bot/core/bootstrap"
	coretelegram "github.com/aleksashka/quiz-bot/core/telegram"
	"github.com/aleksashka/quiz-bot/internal/content"
	"github.com/aleksashka/quiz-bot/internal/session"
)

// App holds the long-lived components constructed at startup.
type App struct {
	cfg   *Config
	bank  *content.Bank
	msgs  *content.Messages
	store session.Store
}

// Bootstrap initializes logging, the session store and the content sources.
// A missing or malformed content source is a startup error: the process
// must not come up without its questions and templates.
func Bootstrap(cfg *Config) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database,
		SkipDatabase: cfg.Storage.Driver != StoragePostgres,
	})
	if err != nil {
		return nil, err
	}

	var store session.Store
	switch cfg.Storage.Driver {
	case StoragePostgres:
		store = session.NewPostgresStore(res.DB)
	default:
		store = session.NewMemoryStore()
	}

	bank, err := content.LoadBank(cfg.Content.QuestionsFile)
	if err != nil {
		return nil, fmt.Errorf("app: question bank: %w", err)
	}
	msgs, err := content.LoadMessages(cfg.Content.MessagesFile)
	if err != nil {
		return nil, fmt.Errorf("app: message templates: %w", err)
	}

	return &App{cfg: cfg, bank: bank, msgs: msgs, store: store}, nil
}

// TelegramRunOptions assembles the bot runtime options. Route construction
// is deferred to Setup because the transport adapter needs the live bot.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Setup:       a.setupRoutes,
	}, nil
}
