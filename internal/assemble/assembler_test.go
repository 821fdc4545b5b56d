package assemble

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/checkpoint"
	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
)

var january = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newAssembler(t *testing.T) (*Assembler, *local.BlobStore) {
	t.Helper()
	out, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	a, err := New(out, nil)
	require.NoError(t, err)
	return a, out
}

func put(t *testing.T, out *local.BlobStore, name string, records ...harvest.ArticleRecord) {
	t.Helper()
	data, err := checkpoint.EncodeRecords(records)
	require.NoError(t, err)
	require.NoError(t, out.WriteBytes(context.Background(), "kbs/2024/01/"+name, data))
}

func article(id string) harvest.ArticleRecord {
	return harvest.ArticleRecord{Date: "2024-01-01", Title: id, Content: "body " + id, NewsID: id, Status: 200}
}

func TestMergeConcatenatesInFilenameOrder(t *testing.T) {
	t.Parallel()

	a, out := newAssembler(t)
	c, x, b := article("C"), article("A"), article("B")
	put(t, out, "kbs_2024-01-21_2024-01-31.jsonl", b)
	put(t, out, "kbs_2024-01-01_2024-01-10.jsonl", c)
	put(t, out, "kbs_2024-01-11_2024-01-20.jsonl", x)

	res, err := a.Merge(context.Background(), "kbs", january)
	require.NoError(t, err)
	assert.Equal(t, "kbs/2024/kbs_2024_01.jsonl", res.Path)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 3, res.Parts)
	assert.Len(t, res.SHA256, 64)

	merged, err := a.Load(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, []harvest.ArticleRecord{c, x, b}, merged)

	assert.NoDirExists(t, filepath.Join(out.BaseDir(), "kbs", "2024", "01"))
	done, err := a.Merged("kbs", january)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMergeIsDeterministic(t *testing.T) {
	t.Parallel()

	digest := func() string {
		a, out := newAssembler(t)
		put(t, out, "kbs_2024-01-11_2024-01-20.jsonl", article("2"))
		put(t, out, "kbs_2024-01-01_2024-01-10.jsonl", article("1"))
		res, err := a.Merge(context.Background(), "kbs", january)
		require.NoError(t, err)
		return res.SHA256
	}
	assert.Equal(t, digest(), digest())
}

func TestMergeToleratesEmptyParts(t *testing.T) {
	t.Parallel()

	a, out := newAssembler(t)
	put(t, out, "kbs_2024-01-01_2024-01-10.jsonl")
	put(t, out, "kbs_2024-01-11_2024-01-20.jsonl", article("A"))

	res, err := a.Merge(context.Background(), "kbs", january)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestMergeAbortsOnCorruptPart(t *testing.T) {
	t.Parallel()

	a, out := newAssembler(t)
	put(t, out, "kbs_2024-01-01_2024-01-10.jsonl", article("A"))
	require.NoError(t, out.WriteBytes(context.Background(), "kbs/2024/01/kbs_2024-01-11_2024-01-20.jsonl", []byte("{not json\n")))

	_, err := a.Merge(context.Background(), "kbs", january)
	require.Error(t, err)

	done, err := a.Merged("kbs", january)
	require.NoError(t, err)
	assert.False(t, done)
	names, err := out.List("kbs/2024/01", "*.jsonl")
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestMergeWithoutArtifacts(t *testing.T) {
	t.Parallel()

	a, _ := newAssembler(t)
	_, err := a.Merge(context.Background(), "kbs", january)
	require.ErrorIs(t, err, ErrNoArtifacts)
}
