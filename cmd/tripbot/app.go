package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tripbot/internal/agent"
	"tripbot/internal/bus"
	"tripbot/internal/config"
	"tripbot/internal/domain"
	"tripbot/internal/intent"
	"tripbot/internal/metrics"
	"tripbot/internal/profile"
	"tripbot/internal/provider"
	"tripbot/internal/store"
	"tripbot/internal/tool"
	"tripbot/internal/tool/amap"
	"tripbot/internal/tool/baidu"
)

// defaultConfUID names the character configuration new conversations are
// archived under.
const defaultConfUID = "default"

// app is the wired runtime shared by the chat and serve commands.
type app struct {
	bus      *bus.InMemoryBus
	loop     *agent.Loop
	tools    *tool.Registry
	metrics  *metrics.Metrics
	provider domain.StreamingProvider
	closers  []io.Closer
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}

	profiles, history, err := a.openStores(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.tools, err = newToolRegistry(cfg, profiles, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tools.SetObserver(a.metrics)

	a.provider, err = provider.New(cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("model provider: %w", err)
	}

	dispatcher := agent.NewDispatcher(agent.DispatcherConfig{
		Provider:    a.provider,
		Classifier:  classifier,
		Tools:       a.tools,
		Profiles:    profiles,
		Metrics:     a.metrics,
		Logger:      logger,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		TurnTimeout: time.Duration(cfg.Agent.TurnTimeoutSeconds) * time.Second,
	})

	a.bus = bus.New(bus.Config{Logger: logger})
	a.loop = agent.NewLoop(agent.LoopConfig{
		Dispatcher:    dispatcher,
		Sessions:      agent.NewSessionManager(cfg.General.SystemPrompt, defaultConfUID, a.metrics, logger),
		Tools:         a.tools,
		Profiles:      profiles,
		History:       history,
		Archive:       cfg.History.Archive,
		Bus:           a.bus,
		DisplayName:   cfg.General.DisplayName,
		DefaultUserID: cfg.General.DefaultUserID,
		Concurrency:   cfg.Agent.MaxConcurrent,
		Logger:        logger,
	})
	return a, nil
}

// openStores returns the profile backend and, when archiving is on, the
// history store. One SQLite file serves both when their paths agree.
func (a *app) openStores(cfg *config.Config, logger *slog.Logger) (domain.ProfileStore, domain.HistoryStore, error) {
	var (
		profiles domain.ProfileStore = profile.NewStore()
		sqlite   *store.SQLiteStore
	)
	if cfg.Profiles.Backend == "sqlite" {
		s, err := store.NewSQLiteStore(cfg.Profiles.DBPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("profile store: %w", err)
		}
		a.closers = append(a.closers, s)
		profiles, sqlite = s, s
	}

	if !cfg.History.Archive {
		return profiles, nil, nil
	}
	if sqlite != nil && cfg.History.DBPath == cfg.Profiles.DBPath {
		return profiles, sqlite, nil
	}
	s, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("history store: %w", err)
	}
	a.closers = append(a.closers, s)
	return profiles, s, nil
}

func (a *app) Close() {
	if a.bus != nil {
		a.bus.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Warn("close failed", "err", err)
		}
	}
}

func (a *app) metricsServer(addr, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, a.metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newClassifier(cfg *config.Config) (*intent.Classifier, error) {
	rules, err := intent.LoadRules(cfg.Intents.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("intent rules: %w", err)
	}
	c, err := intent.New(rules)
	if err != nil {
		return nil, fmt.Errorf("intent rules: %w", err)
	}
	return c, nil
}

// newToolRegistry builds the travel tool catalogue. Credentials are handed
// to the AMap and Baidu clients here and nowhere else.
func newToolRegistry(cfg *config.Config, profiles domain.ProfileStore, logger *slog.Logger) (*tool.Registry, error) {
	rules, err := intent.LoadRules(cfg.Intents.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("intent rules: %w", err)
	}
	if profiles == nil {
		profiles = profile.NewStore()
	}

	maps := amap.New(amap.Config{
		APIKey:     cfg.AMap.APIKey,
		BaseURL:    cfg.AMap.BaseURL,
		Timeout:    time.Duration(cfg.AMap.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.AMap.MaxRetries,
		Logger:     logger,
	})
	vision := baidu.New(baidu.Config{
		APIKey:    cfg.Baidu.APIKey,
		SecretKey: cfg.Baidu.SecretKey,
		BaseURL:   cfg.Baidu.BaseURL,
		Timeout:   time.Duration(cfg.Baidu.TimeoutSeconds) * time.Second,
		Logger:    logger,
	})
	if cfg.AMap.APIKey == "" {
		logger.Warn("amap api key not set; weather, traffic and place tools will report errors")
	}
	if !vision.Configured() {
		logger.Warn("baidu credentials not set; photo analysis will report errors")
	}

	reg := tool.NewRegistry(logger)
	tool.RegisterTravelTools(reg, tool.Deps{
		Maps:           maps,
		Vision:         vision,
		Profiles:       profiles,
		FacilitySearch: rules.Facility.SearchKeywords(),
		Logger:         logger,
	})
	return reg, nil
}
