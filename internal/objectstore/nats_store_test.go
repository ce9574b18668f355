package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/valvoice/internal/objectstore"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func TestNatsObjectStore_UploadDownloadDelete(t *testing.T) {
	t.Parallel()

	jetstreamContext := startJetStream(t)

	store, err := objectstore.New(jetstreamContext, "NARRATION_TEST")
	require.NoError(t, err)
	assert.Equal(t, "NARRATION_TEST", store.Bucket())

	ctx := context.Background()
	payload := []byte("RIFF fake audio")

	require.NoError(t, store.Upload(ctx, "clip.wav", payload))

	got, err := store.Download(ctx, "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, store.Delete(ctx, "clip.wav"))

	_, err = store.Download(ctx, "clip.wav")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestNew_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	jetstreamContext := startJetStream(t)
	ctx := context.Background()

	first, err := objectstore.New(jetstreamContext, "SHARED")
	require.NoError(t, err)
	require.NoError(t, first.Upload(ctx, "line.txt", []byte("hello")))

	second, err := objectstore.New(jetstreamContext, "SHARED")
	require.NoError(t, err)

	got, err := second.Download(ctx, "line.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestNew_BindsBucketCreatedWithOtherConfig(t *testing.T) {
	t.Parallel()

	jetstreamContext := startJetStream(t)
	ctx := context.Background()

	existing, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:  "FOREIGN",
		Storage: nats.MemoryStorage,
	})
	require.NoError(t, err)

	_, err = existing.PutBytes("line.txt", []byte("from another service"))
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "FOREIGN")
	require.NoError(t, err)

	got, err := store.Download(ctx, "line.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("from another service"), got)
}

func TestDownload_MissingKey(t *testing.T) {
	t.Parallel()

	store, err := objectstore.New(startJetStream(t), "EMPTY")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "nope")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}
