// valvoice narrates game chat through the Cartesia cloud voice service or the
// operating system speech engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/narration"
	"github.com/book-expert/valvoice/internal/settings"
	"github.com/spf13/cobra"
)

const (
	bootstrapLogFile      = "valvoice-bootstrap.log"
	hintMissingCredential = "Set your Cartesia API key with: valvoice settings set " + settings.KeyAPIKey + " <key>"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

// rootState carries the app built by the root pre-run to every subcommand.
// The caller of newRootCommand releases it with stop.
type rootState struct {
	configPath string
	app        *app
}

func newRootCommand(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "valvoice",
		Short:         "Narrate chat messages with cloud or local voices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return state.start()
		},
	}

	cmd.PersistentFlags().StringVarP(&state.configPath, "config", "c", "", "path to a TOML config file")

	cmd.AddCommand(
		newSpeakCommand(state),
		newVoicesCommand(state),
		newBlockListCommand(state),
		newSettingsCommand(state),
		newQuotaCommand(state),
		newHealthCommand(state),
		newServeCommand(state),
		newRequestCommand(state),
	)

	return cmd
}

func (s *rootState) start() error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := loadConfig(s.configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	built, err := newApp(cfg)
	if err != nil {
		bootstrapLog.Error("Failed to initialize: %v", err)

		return err
	}

	built.log.System("valvoice initialized with %s backend, data in %s", cfg.Backend, cfg.Paths.DataDir)
	s.app = built

	return nil
}

func (s *rootState) stop() {
	if s.app != nil {
		s.app.close()
		s.app = nil
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &rootState{}
	defer state.stop()

	cmd := newRootCommand(state)
	cmd.SetArgs(args)

	return cmd.ExecuteContext(ctx)
}

// reportError prints err and, when the user can fix it, how.
func reportError(out io.Writer, err error) {
	fmt.Fprintf(out, "valvoice: %v\n", err)

	if errors.Is(err, narration.ErrMissingCredential) {
		fmt.Fprintln(out, hintMissingCredential)
	}
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}
