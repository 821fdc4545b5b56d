package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/harvest"
	"github.com/JakeFAU/news-harvester/internal/storage/local"
)

func newStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	stateDir, outDir := t.TempDir(), t.TempDir()
	state, err := local.New(local.Config{BaseDir: stateDir})
	require.NoError(t, err)
	out, err := local.New(local.Config{BaseDir: outDir})
	require.NoError(t, err)
	s, err := New(state, out)
	require.NoError(t, err)
	return s, stateDir, outDir
}

func window(begin, end string) harvest.Window {
	b, _ := time.Parse(harvest.DateLayout, begin)
	e, _ := time.Parse(harvest.DateLayout, end)
	return harvest.Window{Begin: b, End: e}
}

func TestPathLayout(t *testing.T) {
	t.Parallel()

	s, _, _ := newStore(t)
	key := Key{Label: "kbs", Window: window("2023-03-01", "2023-03-10")}

	ids, err := s.Path(key, harvest.PhaseIdentifiers)
	require.NoError(t, err)
	assert.Equal(t, "kbs_data_id/2023/2023-03-01_2023-03-10.txt", ids)

	content, err := s.Path(key, harvest.PhaseContent)
	require.NoError(t, err)
	assert.Equal(t, "kbs/2023/03/kbs_2023-03-01_2023-03-10.jsonl", content)

	assert.Equal(t, "kbs/2023/kbs_2023_03.jsonl", MergedPath("kbs", 2023, 3))

	_, err = s.Path(Key{Window: key.Window}, harvest.PhaseContent)
	require.Error(t, err)
}

func TestPathFilesInvertedWindowUnderItsPeriod(t *testing.T) {
	t.Parallel()

	s, _, _ := newStore(t)
	key := Key{Label: "kbs", Window: window("2024-01-01", "2023-12-31")}

	ids, err := s.Path(key, harvest.PhaseIdentifiers)
	require.NoError(t, err)
	assert.Equal(t, "kbs_data_id/2023/2024-01-01_2023-12-31.txt", ids)

	content, err := s.Path(key, harvest.PhaseContent)
	require.NoError(t, err)
	assert.Equal(t, "kbs/2023/12/kbs_2024-01-01_2023-12-31.jsonl", content)
}

func TestIdentifiersRoundTrip(t *testing.T) {
	t.Parallel()

	s, stateDir, _ := newStore(t)
	ctx := context.Background()
	key := Key{Label: "kbs_mbc", Window: window("2024-01-01", "2024-01-10")}

	ok, err := s.Exists(key, harvest.PhaseIdentifiers)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.WriteIdentifiers(ctx, key, []harvest.NewsID{"a", "", "b", "a"}))
	ok, err = s.Exists(key, harvest.PhaseIdentifiers)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(stateDir, "kbs_mbc_data_id", "2024", "2024-01-01_2024-01-10.txt"))

	ids, err := s.ReadIdentifiers(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []harvest.NewsID{"a", "b", "a"}, ids)
}

func TestEmptyIdentifierCheckpointCountsAsDone(t *testing.T) {
	t.Parallel()

	s, _, _ := newStore(t)
	ctx := context.Background()
	key := Key{Label: "kbs", Window: window("2024-02-11", "2024-02-10")}

	require.NoError(t, s.WriteIdentifiers(ctx, key, nil))
	ok, err := s.Exists(key, harvest.PhaseIdentifiers)
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := s.ReadIdentifiers(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRecordsRoundTrip(t *testing.T) {
	t.Parallel()

	s, _, outDir := newStore(t)
	ctx := context.Background()
	key := Key{Label: "kbs", Window: window("2024-01-01", "2024-01-10")}
	records := []harvest.ArticleRecord{
		{Date: "2024-01-02", Title: "<b>제목</b>", Content: "본문", NewsID: "02100601.1", Status: 200},
		{Date: "2024-01-01", Title: "t2", Content: "c2", NewsID: "02100601.2", Status: 200},
	}

	require.NoError(t, s.WriteRecords(ctx, key, records))
	raw, err := os.ReadFile(filepath.Join(outDir, "kbs", "2024", "01", "kbs_2024-01-01_2024-01-10.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"title":"<b>제목</b>"`)

	got, err := s.ReadRecords(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestCorruptRecordsPropagate(t *testing.T) {
	t.Parallel()

	s, _, _ := newStore(t)
	ctx := context.Background()
	key := Key{Label: "kbs", Window: window("2024-01-01", "2024-01-10")}

	require.NoError(t, s.Write(ctx, key, harvest.PhaseContent, []byte("{\"date\":\"x\"}\nnot json\n")))
	_, err := s.ReadRecords(ctx, key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDecodeRecordsSkipsBlankLines(t *testing.T) {
	t.Parallel()

	records, err := DecodeRecords([]byte("\n{\"news_id\":\"1\"}\n\n{\"news_id\":\"2\"}"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[1].NewsID)
}
