package main

import (
	"context"
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/audio"
	"github.com/book-expert/valvoice/internal/config"
	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/errlog"
	"github.com/book-expert/valvoice/internal/narration"
	"github.com/book-expert/valvoice/internal/observe"
	"github.com/book-expert/valvoice/internal/quota"
	"github.com/book-expert/valvoice/internal/session"
	"github.com/book-expert/valvoice/internal/settings"
)

const logFileName = "valvoice.log"

// app is everything a command needs, built once per invocation.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	provider  *observe.Provider
	metrics   *observe.Metrics
	errorLog  *errlog.Log
	client    *narration.CartesiaClient
	remote    *narration.RemoteNarrator
	local     *narration.LocalEngine
	blockList *settings.BlockList
	store     *settings.Store
	catalog   []core.VoiceDescriptor
	session   *session.Session
}

// loadConfig reads configPath when given, otherwise asks the configurator.
func loadConfig(configPath string, bootstrapLog *logger.Logger) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	return config.Load(bootstrapLog)
}

func newApp(cfg *config.Config) (*app, error) {
	log, err := setupLogger(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, err
	}

	provider := observe.NewProvider()

	metrics, err := observe.NewMetrics(provider)
	if err != nil {
		_ = log.Close()

		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	built := &app{
		cfg:      cfg,
		log:      log,
		provider: provider,
		metrics:  metrics,
		errorLog: errlog.New(cfg.Paths.ErrorLogPath()),
		store:    settings.NewStore(cfg.Paths.SettingsPath()),
		catalog:  narration.RemoteCatalog(cfg.Cartesia),
	}

	err = built.wire()
	if err != nil {
		built.close()

		return nil, err
	}

	return built, nil
}

func (a *app) wire() error {
	player, err := audio.NewCommandPlayer(a.cfg.Player.Command, a.cfg.Player.Args)
	if err != nil {
		return fmt.Errorf("failed to set up audio player: %w", err)
	}

	a.client = narration.NewCartesiaClient(a.cfg.Cartesia)
	a.remote = narration.NewRemoteNarrator(
		a.client, player, a.cfg.Cartesia.Format(), a.cfg.Paths.AudioDir, a.errorLog, a.metrics, a.log,
	)

	driver, err := narration.NewDriver(a.cfg.Local.Driver, a.cfg.Local.Binary)
	if err != nil {
		a.log.Warn("Local speech engine disabled: %v", err)
	} else {
		a.local = narration.NewLocalEngine(driver, a.cfg.Local.Rate, a.errorLog, a.metrics, a.log)
	}

	a.blockList, err = settings.OpenBlockList(a.cfg.Paths.BlockListPath())
	if err != nil {
		return err
	}

	a.session, err = session.New(session.Deps{
		Settings:    a.store,
		BlockList:   a.blockList,
		Quota:       quota.NewTracker(a.cfg.Quota.DailyLimit),
		Remote:      a.remote,
		Credentials: a.client,
		Local:       a.local,
		Catalog:     a.catalog,
		Backend:     core.Backend(a.cfg.Backend),
		Log:         a.log,
	})
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	return nil
}

// resolveVoice maps a bus request voice name onto the remote catalog. An
// empty name uses the session's selected voice, or the first profile when the
// session speaks locally.
func (a *app) resolveVoice(name string) (core.VoiceDescriptor, error) {
	if name == "" {
		voice, ok := a.session.Voice()
		if ok && voice.Backend == core.BackendRemote {
			return voice, nil
		}

		if len(a.catalog) == 0 {
			return core.VoiceDescriptor{}, narration.ErrNoVoiceSelected
		}

		return a.catalog[0], nil
	}

	return narration.FindVoice(a.catalog, name)
}

// logSummary writes the metric totals of this run to the log.
func (a *app) logSummary(ctx context.Context) {
	lines, err := a.provider.Summary(ctx)
	if err != nil {
		a.log.Warn("Failed to collect metrics: %v", err)

		return
	}

	for _, line := range lines {
		a.log.Info("metric %s", line)
	}
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}

	shutdownErr := a.provider.Shutdown(context.Background())
	if shutdownErr != nil {
		a.log.Warn("Failed to shut down metrics: %v", shutdownErr)
	}

	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}
