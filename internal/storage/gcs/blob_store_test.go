package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/news-harvester/internal/storage/local"
)

func newClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint("http://127.0.0.1:1/storage/v1/"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(newClient(t), Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	plain, err := New(newClient(t), Config{Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "kbs/2024/kbs_2024_01.jsonl", plain.ObjectName("kbs/2024/kbs_2024_01.jsonl"))

	prefixed, err := New(newClient(t), Config{Bucket: "b", Prefix: "/harvest/"})
	require.NoError(t, err)
	assert.Equal(t, "harvest/kbs/2024/kbs_2024_01.jsonl", prefixed.ObjectName("kbs/2024/kbs_2024_01.jsonl"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(newClient(t), Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", nil, nil)
	require.Error(t, err)
}

func TestNewArchiveValidates(t *testing.T) {
	t.Parallel()

	out, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = NewArchive(nil, out, nil)
	require.Error(t, err)

	store, err := New(newClient(t), Config{Bucket: "b"})
	require.NoError(t, err)
	a, err := NewArchive(store, out, nil)
	require.NoError(t, err)
	assert.Equal(t, "gcs", a.Name())
}
