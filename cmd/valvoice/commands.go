package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/fileutil"
	"github.com/book-expert/valvoice/internal/narration"
	"github.com/book-expert/valvoice/internal/quota"
	"github.com/book-expert/valvoice/internal/settings"
	"github.com/book-expert/valvoice/internal/text"
	"github.com/spf13/cobra"
)

const (
	defaultHealthTimeout = 5 * time.Second
	maskedSecret         = "********"
)

var errNoRemoteOutput = errors.New("--out needs the remote backend")

func newSpeakCommand(state *rootState) *cobra.Command {
	var (
		voiceName string
		backend   string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:     "speak TEXT...",
		Short:   "Narrate a message",
		Example: `valvoice speak --voice JetVoice "gg wp"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := state.app
			message := strings.Join(args, " ")

			if backend != "" {
				err := a.session.SetBackend(core.Backend(backend))
				if err != nil {
					return err
				}
			}

			if voiceName != "" {
				err := a.session.SelectVoice(voiceName)
				if err != nil {
					return err
				}
			}

			if outPath != "" {
				return speakToFile(cmd, a, message, outPath)
			}

			task, err := a.session.Speak(message)
			if err != nil {
				return err
			}

			return task.Wait(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&voiceName, "voice", "v", "", "select and remember a voice by name")
	cmd.Flags().StringVarP(&backend, "backend", "b", "", `narration backend, "remote" or "local"`)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the audio to this file instead of playing it")

	return cmd
}

// speakToFile synthesizes through the remote backend and keeps the audio.
func speakToFile(cmd *cobra.Command, a *app, message, outPath string) error {
	if a.session.Backend() != core.BackendRemote {
		return errNoRemoteOutput
	}

	voice, ok := a.session.Voice()
	if !ok {
		return narration.ErrNoVoiceSelected
	}

	prepared := text.NewPreparer().Prepare(message)
	if prepared == "" {
		return narration.ErrEmptyInput
	}

	readyErr := a.client.Ready()
	if readyErr != nil {
		return readyErr
	}

	payload, err := a.remote.Synthesize(cmd.Context(), core.NarrationRequest{
		Text:   prepared,
		Voice:  voice,
		Format: a.cfg.Cartesia.Format(),
	})
	if err != nil {
		return err
	}

	target := filepath.Join(filepath.Dir(outPath), fileutil.SanitizeFilename(filepath.Base(outPath)))
	if filepath.Ext(target) == "" {
		target += payload.Format.Extension()
	}

	err = fileutil.WriteFileAtomic(target, payload.Data)
	if err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	cmd.Printf("Wrote %s (%s)\n", target, fileutil.FormatFileSize(int64(len(payload.Data))))

	return nil
}

func newVoicesCommand(state *rootState) *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices of a backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := state.app.session

			if backend != "" {
				err := sess.SetBackend(core.Backend(backend))
				if err != nil {
					return err
				}
			}

			selected, hasSelected := sess.Voice()

			for _, voice := range sess.Voices() {
				marker := " "
				if hasSelected && voice.Name == selected.Name {
					marker = "*"
				}

				cmd.Printf("%s %-28s rate %+d\n", marker, voice.Name, voice.Rate)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "", `narration backend, "remote" or "local"`)

	return cmd
}

func newBlockListCommand(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocklist",
		Short: "Manage senders whose messages are never narrated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List blocked senders",
			RunE: func(cmd *cobra.Command, _ []string) error {
				for i, id := range state.app.blockList.IDs() {
					cmd.Printf("%d\t%s\n", i, id)
				}

				return nil
			},
		},
		&cobra.Command{
			Use:   "add ID...",
			Short: "Block senders",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				for _, id := range args {
					err := state.app.session.Block(id)
					if err != nil {
						return err
					}
				}

				return nil
			},
		},
		&cobra.Command{
			Use:   "remove ID...",
			Short: "Unblock senders",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				for _, id := range args {
					err := state.app.session.Unblock(id)
					if err != nil {
						return err
					}
				}

				return nil
			},
		},
	)

	return cmd
}

func newSettingsCommand(state *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change stored settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the stored settings",
			RunE: func(cmd *cobra.Command, _ []string) error {
				current := state.app.session.Settings()

				for _, key := range settings.Keys() {
					value, err := current.Get(key)
					if err != nil {
						return err
					}

					if key == settings.KeyAPIKey && value != "" {
						value = maskedSecret
					}

					cmd.Printf("%s=%s\n", key, value)
				}

				return nil
			},
		},
		&cobra.Command{
			Use:     "set KEY VALUE",
			Short:   "Change one setting",
			Example: `valvoice settings set Premium 1`,
			Args:    cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				next := state.app.session.Settings()

				err := next.Set(args[0], args[1])
				if err != nil {
					return err
				}

				return state.app.session.UpdateSettings(next)
			},
		},
	)

	return cmd
}

func newQuotaCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show today's narration usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats := state.app.session.Quota()

			limit := fmt.Sprintf("%d", stats.Limit)
			if stats.Premium {
				limit = "unlimited"
			}

			cmd.Printf("%s: %d messages, %d characters, limit %s\n", stats.Day, stats.Messages, stats.Chars, limit)

			if !stats.Premium && stats.Messages >= stats.Limit {
				cmd.Println(quota.ErrQuotaExhausted)
			}

			return nil
		},
	}
}

func newHealthCommand(state *rootState) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the voice service is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := state.app.client.HealthCheck(cmd.Context(), timeout)
			if err != nil {
				return err
			}

			cmd.Println("voice service reachable")

			return state.app.client.Ready()
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultHealthTimeout, "health check timeout")

	return cmd
}
