package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/book-expert/valvoice/internal/fileutil"
	"github.com/book-expert/valvoice/internal/objectstore"
	"github.com/book-expert/valvoice/internal/settings"
	"github.com/book-expert/valvoice/internal/worker"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const embeddedStartTimeout = 5 * time.Second

var errEmbeddedNotReady = errors.New("embedded NATS server did not start")

func newServeCommand(state *rootState) *cobra.Command {
	var (
		embedded     bool
		embeddedPort int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Narrate requests arriving over NATS and follow settings edits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := state.app
			url := a.cfg.NATS.URL

			if embedded {
				natsServer, err := startEmbeddedServer(a, embeddedPort)
				if err != nil {
					return err
				}

				defer natsServer.Shutdown()

				url = natsServer.ClientURL()
			}

			if url == "" {
				url = nats.DefaultURL
			}

			return serve(cmd.Context(), a, url)
		},
	}

	cmd.Flags().BoolVar(&embedded, "embedded", false, "run an embedded NATS server with JetStream")
	cmd.Flags().IntVar(&embeddedPort, "embedded-port", server.DEFAULT_PORT, "client port of the embedded NATS server")

	return cmd
}

func startEmbeddedServer(a *app, port int) (*server.Server, error) {
	natsServer, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      port,
		JetStream: true,
		StoreDir:  filepath.Join(a.cfg.Paths.DataDir, "jetstream"),
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go natsServer.Start()

	if !natsServer.ReadyForConnections(embeddedStartTimeout) {
		natsServer.Shutdown()

		return nil, errEmbeddedNotReady
	}

	a.log.Info("Embedded NATS server listening on %s", natsServer.ClientURL())

	return natsServer, nil
}

func serve(ctx context.Context, a *app, url string) error {
	natsConnection, err := nats.Connect(url, nats.Name("valvoice"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, a.cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	narrationWorker, err := worker.NewNatsWorker(
		natsConnection,
		worker.Config{
			Subject: a.cfg.NATS.NarrationSubject,
			Format:  a.cfg.Cartesia.Format(),
			Play:    a.cfg.NATS.Play,
		},
		store,
		a.remote,
		a.resolveVoice,
		a.blockList,
		a.metrics,
		a.log,
	)
	if err != nil {
		return fmt.Errorf("failed to create narration worker: %w", err)
	}

	err = fileutil.EnsureDir(a.cfg.Paths.DataDir)
	if err != nil {
		return err
	}

	watcher := settings.NewWatcher(a.cfg.Paths.DataDir, a.log)
	watcher.OnChange(a.cfg.Paths.SettingsFile, func() {
		reloadErr := a.session.Reload()
		if reloadErr != nil {
			a.log.Warn("Failed to reload settings: %v", reloadErr)
		}
	})
	watcher.OnChange(a.cfg.Paths.BlockListFile, func() {
		reloadErr := a.blockList.Reload()
		if reloadErr != nil {
			a.log.Warn("Failed to reload block list: %v", reloadErr)
		}
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return narrationWorker.Run(groupCtx) })
	group.Go(func() error { return watcher.Run(groupCtx) })

	a.log.System("Serving narration requests from %s on %s", url, a.cfg.NATS.NarrationSubject)

	err = group.Wait()

	a.logSummary(context.Background())

	return err
}
