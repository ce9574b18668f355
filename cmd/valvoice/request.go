package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/fileutil"
	"github.com/book-expert/valvoice/internal/objectstore"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Log and error messages.
const (
	errEitherTextOrLines  = "either TEXT or --lines must be provided"
	errCannotSpecifyBoth  = "cannot specify both TEXT and --lines"
	logRequestSent        = "Narration requested for %s as %s"
	logRequestCompleted   = "Narration %s stored as %s (%s)"
	logCleanupFailed      = "Failed to delete object %s: %v"
	defaultRequestTimeout = 60 * time.Second
	defaultParallel       = 4
)

var (
	errNoInput   = errors.New(errEitherTextOrLines)
	errBothInput = errors.New(errCannotSpecifyBoth)
)

type requestOptions struct {
	url      string
	sender   string
	voice    string
	lines    string
	outDir   string
	timeout  time.Duration
	parallel int
}

func newRequestCommand(state *rootState) *cobra.Command {
	opts := requestOptions{}

	cmd := &cobra.Command{
		Use:   "request [TEXT...]",
		Short: "Ask a running serve instance to narrate text over NATS",
		Example: `valvoice request --sender "player#NA1" "nice shot"
valvoice request --lines chat.txt --out ./clips`,
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := requestMessages(args, opts.lines)
			if err != nil {
				return err
			}

			return sendRequests(cmd, state.app, opts, messages)
		},
	}

	cmd.Flags().StringVar(&opts.url, "nats-url", "", "NATS server URL (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.sender, "sender", "", "sender ID attached to each request")
	cmd.Flags().StringVarP(&opts.voice, "voice", "v", "", "remote voice name")
	cmd.Flags().StringVar(&opts.lines, "lines", "", "file with one message per line")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "directory receiving the audio files")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultRequestTimeout, "time to wait for each reply")
	cmd.Flags().IntVar(&opts.parallel, "parallel", defaultParallel, "requests in flight at once")

	return cmd
}

func requestMessages(args []string, linesPath string) ([]string, error) {
	switch {
	case len(args) == 0 && linesPath == "":
		return nil, errNoInput
	case len(args) > 0 && linesPath != "":
		return nil, errBothInput
	case len(args) > 0:
		return []string{strings.Join(args, " ")}, nil
	}

	data, err := os.ReadFile(linesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", linesPath, err)
	}

	var messages []string

	for _, line := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			messages = append(messages, line)
		}
	}

	if len(messages) == 0 {
		return nil, errNoInput
	}

	return messages, nil
}

func sendRequests(cmd *cobra.Command, a *app, opts requestOptions, messages []string) error {
	url := opts.url
	if url == "" {
		url = a.cfg.NATS.URL
	}

	if url == "" {
		url = nats.DefaultURL
	}

	natsConnection, err := nats.Connect(url, nats.Name("valvoice-request"))
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

	err = fileutil.EnsureDir(opts.outDir)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(cmd.Context())
	group.SetLimit(max(1, opts.parallel))

	var printMu sync.Mutex

	for index, message := range messages {
		group.Go(func() error {
			path, requestErr := requestOne(ctx, a, natsConnection, store, opts, index, message)
			if requestErr != nil {
				return fmt.Errorf("message %d: %w", index+1, requestErr)
			}

			printMu.Lock()
			cmd.Println(path)
			printMu.Unlock()

			return nil
		})
	}

	return group.Wait()
}

// requestOne stores message, waits for the narration reply and saves the audio.
// Both objects are removed from the bucket afterwards.
func requestOne(
	ctx context.Context,
	a *app,
	natsConnection *nats.Conn,
	store core.ObjectStore,
	opts requestOptions,
	index int,
	message string,
) (string, error) {
	workflowID := uuid.NewString()
	textKey := workflowID + ".txt"

	err := store.Upload(ctx, textKey, []byte(message))
	if err != nil {
		return "", err
	}

	defer deleteObject(a, store, textKey)

	event := events.TextProcessedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: workflowID,
			EventID:    uuid.NewString(),
			UserID:     opts.sender,
		},
		TextKey:    textKey,
		PageNumber: index + 1,
		Voice:      opts.voice,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	a.log.Info(logRequestSent, textKey, workflowID)

	requestCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	reply, err := natsConnection.RequestWithContext(requestCtx, a.cfg.NATS.NarrationSubject, payload)
	if err != nil {
		return "", fmt.Errorf("no narration reply (blocked sender, unknown voice or service down): %w", err)
	}

	var created events.AudioChunkCreatedEvent

	err = json.Unmarshal(reply.Data, &created)
	if err != nil {
		return "", fmt.Errorf("failed to decode reply: %w", err)
	}

	defer deleteObject(a, store, created.AudioKey)

	audioData, err := store.Download(ctx, created.AudioKey)
	if err != nil {
		return "", err
	}

	target := filepath.Join(opts.outDir, fileutil.SanitizeFilename(fmt.Sprintf("%03d-%s", index+1, created.AudioKey)))

	err = fileutil.WriteFileAtomic(target, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}

	a.log.Info(logRequestCompleted, workflowID, target, fileutil.FormatFileSize(int64(len(audioData))))

	return target, nil
}

func deleteObject(a *app, store core.ObjectStore, key string) {
	err := store.Delete(context.Background(), key)
	if err != nil {
		a.log.Warn(logCleanupFailed, key, err)
	}
}
